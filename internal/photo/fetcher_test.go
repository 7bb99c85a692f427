package photo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBoundary(t *testing.T) {
	boundary, ok := extractBoundary(map[string]string{"content-type": `multipart/mixed; boundary="simple_boundary"`})
	require.True(t, ok)
	assert.Equal(t, "simple_boundary", boundary)

	_, ok = extractBoundary(map[string]string{"content-type": "image/jpeg"})
	assert.False(t, ok)
}

func TestSplitMultipartExtractsHeadersAndData(t *testing.T) {
	body := "--simple_boundary\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Object-ID: 1\r\n" +
		"Content-Sub-Description: front\r\n" +
		"\r\n" +
		"BINARYDATAONE" +
		"\r\n--simple_boundary\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Object-ID: 2\r\n" +
		"\r\n" +
		"BINARYDATATWO" +
		"\r\n--simple_boundary--\r\n"

	parts := splitMultipart([]byte(body), "simple_boundary")
	require.Len(t, parts, 2)
	assert.Equal(t, "1", parts[0].headers["object-id"])
	assert.Equal(t, "front", parts[0].headers["content-sub-description"])
	assert.Equal(t, "BINARYDATAONE", string(parts[0].data))
	assert.Equal(t, "2", parts[1].headers["object-id"])
	assert.Equal(t, "BINARYDATATWO", string(parts[1].data))
}

func TestSplitMultipartKeepsNonImagePartsForCallerToFilter(t *testing.T) {
	body := "--b\r\nContent-Type: text/plain\r\n\r\nignored\r\n--b\r\nContent-Type: image/jpeg\r\nObject-ID: 9\r\n\r\nJPEGBYTES\r\n--b--\r\n"
	parts := splitMultipart([]byte(body), "b")
	require.Len(t, parts, 2)
	assert.Equal(t, "text/plain", parts[0].headers["content-type"])
	assert.Equal(t, "image/jpeg", parts[1].headers["content-type"])
}

func TestRelevantHeadersKeepsXPrefixed(t *testing.T) {
	headers := map[string]string{
		"object-id":     "5",
		"x-custom-flag": "yes",
		"irrelevant":    "drop-me",
	}
	out := relevantHeaders(headers)
	assert.Equal(t, "5", out["object-id"])
	assert.Equal(t, "yes", out["x-custom-flag"])
	_, present := out["irrelevant"]
	assert.False(t, present)
}

func TestJPEGMagicExtractionSkipsPrefixFraming(t *testing.T) {
	data := append([]byte("VENDORFRAMINGBYTES"), 0xFF, 0xD8, 0xFF, 0xE0)
	idx := bytes.Index(data, jpegMagic)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data[idx:])
}
