package rets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoginResponse(t *testing.T) {
	body := `<RETS-RESPONSE>
MemberName=Test Board
User=1234,0,Agent,Office
Broker=ABC123
MetadataVersion=1.2.3
MetadataTimestamp=2024-01-01T00:00:00Z
InfoFoo=ignored
Search=/rets/search
GetObject=/rets/getobject
GetMetadata=/rets/getmetadata
Logout=/rets/logout
ReplyCode=0
ReplyText=Success
</RETS-RESPONSE>`

	resp, err := ParseLoginResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "0", resp.ReplyCode)
	assert.Equal(t, "Success", resp.ReplyText)
	assert.Equal(t, "/rets/search", resp.Capabilities["Search"])
	assert.Equal(t, "/rets/logout", resp.Capabilities["Logout"])
	_, hasInfo := resp.Capabilities["InfoFoo"]
	assert.False(t, hasInfo, "Info-prefixed keys must be ignored")
}

func TestParseLoginResponseMalformed(t *testing.T) {
	_, err := ParseLoginResponse("<html>not rets</html>")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseMetadataResponse(t *testing.T) {
	body := `<RETS-STATUS ReplyCode="0" ReplyText="Success"/>
<METADATA-TABLE Resource="Property" Class="RE_1">
<COLUMNS>	SystemName	LongName	DataType	MaxLength	</COLUMNS>
<DATA>	L_ListingID	Listing ID	Character	20	</DATA>
<DATA>	L_UpdateDate	Update Date	DateTime	</DATA>
</METADATA-TABLE>`

	resp, err := ParseMetadataResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "0", resp.ReplyCode)
	require.Len(t, resp.Metadata, 1)

	block := resp.Metadata[0]
	assert.Equal(t, "METADATA-TABLE", block.Type)
	assert.Equal(t, "Property", block.Attrs["Resource"])
	require.Len(t, block.Data, 2)
	assert.Equal(t, []string{"L_ListingID", "Listing ID", "Character", "20"}, block.Data[0])
	// short row is right-padded to align with the column header
	assert.Equal(t, []string{"L_UpdateDate", "Update Date", "DateTime", ""}, block.Data[1])
}

func TestParseSearchResponseUnauthorized(t *testing.T) {
	body := `<RETS-STATUS ReplyCode="20207" ReplyText="Unauthorized Query class [CI_3] in resource [Property]"/>`
	resp, err := ParseSearchResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "20207", resp.ReplyCode)

	resource, class, ok := IsUnauthorizedQuery(resp.ReplyCode, resp.ReplyText)
	require.True(t, ok)
	assert.Equal(t, "Property", resource)
	assert.Equal(t, "CI_3", class)
}

func TestParseSearchResponseColumns(t *testing.T) {
	body := `<RETS-STATUS ReplyCode="0" ReplyText="Success"/>
<COUNT Records="2"/>
<COLUMNS>	L_ListingID	L_UpdateDate	</COLUMNS>
<DATA>	230475	2024-05-01T10:00:00	</DATA>
<DATA>	230476	2024-05-02T10:00:00	</DATA>`

	resp, err := ParseSearchResponse(body)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"L_ListingID", "L_UpdateDate"}, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "230475", resp.Rows[0][0])
}

func TestParseResponseNoReplyIsMalformed(t *testing.T) {
	_, err := ParseSearchResponse("<COLUMNS>a\tb</COLUMNS>")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestIsUnauthorizedQueryNegative(t *testing.T) {
	_, _, ok := IsUnauthorizedQuery("0", "Success")
	assert.False(t, ok)
}
