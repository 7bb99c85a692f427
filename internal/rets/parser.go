package rets

import (
	"regexp"
	"strings"
)

// The three response grammars are detected by content inspection and
// parsed with small regexes/line scans rather than a general XML parser
// (spec.md §9: "the parser is regex-driven by contract"). The server's
// framing is a tab-delimited payload wrapped in a handful of well-known
// tags; treating it as a line/tag scanner keeps the implementation a
// zero-copy pass over the body instead of a full DOM build.

var (
	reResponseTag = regexp.MustCompile(`(?s)<RETS-RESPONSE>(.*?)</RETS-RESPONSE>`)
	reMetadataTag = regexp.MustCompile(`<METADATA-\w+[^>]*>`)
	reTagAttrs    = regexp.MustCompile(`(\w[\w-]*)="([^"]*)"`)
	reColumns     = regexp.MustCompile(`(?s)<COLUMNS>(.*?)</COLUMNS>`)
	reDataLines   = regexp.MustCompile(`<DATA>(.*?)</DATA>`)
	reCount       = regexp.MustCompile(`<COUNT\s+Records="(\d+)"\s*/?>`)
	reReplyCode   = regexp.MustCompile(`ReplyCode="(\d+)"`)
	reReplyText   = regexp.MustCompile(`ReplyText="([^"]*)"`)
	reUnauthClass = regexp.MustCompile(`class\s*\[([^\]]+)\]\s*in\s*resource\s*\[([^\]]+)\]`)
)

// LoginResponse is the parsed body of a successful Login call.
type LoginResponse struct {
	ReplyCode    string
	ReplyText    string
	Capabilities map[string]string
}

// ParseLoginResponse parses the KEY=VALUE body inside <RETS-RESPONSE>.
// Lines whose key starts with "Info" are informational and ignored.
func ParseLoginResponse(body string) (*LoginResponse, error) {
	m := reResponseTag.FindStringSubmatch(body)
	if m == nil {
		return nil, ErrMalformedResponse
	}

	resp := &LoginResponse{Capabilities: map[string]string{}}
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch {
		case key == "ReplyCode":
			resp.ReplyCode = value
		case key == "ReplyText":
			resp.ReplyText = value
		case strings.HasPrefix(key, "Info"):
			// informational, ignored
		default:
			resp.Capabilities[key] = value
		}
	}

	if resp.ReplyCode == "" && resp.ReplyText == "" {
		return nil, ErrMalformedResponse
	}
	return resp, nil
}

// MetadataBlock is the payload of a single <METADATA-X> element.
type MetadataBlock struct {
	Type    string
	Attrs   map[string]string
	Columns []string
	Data    [][]string
}

// MetadataResponse is the full parsed body of a GetMetadata call.
type MetadataResponse struct {
	ReplyCode string
	ReplyText string
	Metadata  []MetadataBlock
}

// ParseMetadataResponse parses a METADATA-X response: zero or more
// metadata blocks, each with an optional <COLUMNS> header and any number
// of <DATA> rows aligned positionally against it.
func ParseMetadataResponse(body string) (*MetadataResponse, error) {
	resp := &MetadataResponse{
		ReplyCode: firstMatch(reReplyCode, body),
		ReplyText: firstMatch(reReplyText, body),
	}

	tags := reMetadataTag.FindAllStringIndex(body, -1)
	if len(tags) == 0 {
		if resp.ReplyCode == "" && resp.ReplyText == "" {
			return nil, ErrMalformedResponse
		}
		return resp, nil
	}

	for i, loc := range tags {
		start := loc[1]
		end := len(body)
		if i+1 < len(tags) {
			end = tags[i+1][0]
		}
		segment := body[loc[0]:loc[1]]
		block := MetadataBlock{
			Type:  metadataType(segment),
			Attrs: attrsOf(segment),
		}
		block.Columns, block.Data = parseColumnsAndData(body[start:end])
		resp.Metadata = append(resp.Metadata, block)
	}

	if resp.ReplyCode == "" && resp.ReplyText == "" {
		return nil, ErrMalformedResponse
	}
	return resp, nil
}

// SearchResponse is the parsed body of a Search call.
type SearchResponse struct {
	ReplyCode string
	ReplyText string
	Count     int
	Columns   []string
	Rows      [][]string
}

// ParseSearchResponse parses a COMPACT-format Search reply: a <COUNT>,
// a <COLUMNS> header and any number of tab-delimited <DATA> rows.
func ParseSearchResponse(body string) (*SearchResponse, error) {
	resp := &SearchResponse{
		ReplyCode: firstMatch(reReplyCode, body),
		ReplyText: firstMatch(reReplyText, body),
	}

	if m := reCount.FindStringSubmatch(body); m != nil {
		resp.Count = atoiSafe(m[1])
	}

	resp.Columns, resp.Rows = parseColumnsAndData(body)

	if resp.ReplyCode == "" && resp.ReplyText == "" {
		return nil, ErrMalformedResponse
	}
	return resp, nil
}

// IsUnauthorizedQuery detects the 20207/"Unauthorized Query" signature and
// extracts the offending resource/class pair from the reply text.
func IsUnauthorizedQuery(replyCode, replyText string) (resource, class string, ok bool) {
	if replyCode != "20207" || !strings.Contains(replyText, "Unauthorized Query") {
		return "", "", false
	}
	m := reUnauthClass.FindStringSubmatch(replyText)
	if m == nil {
		return "", "", true
	}
	return m[2], m[1], true
}

// parseColumnsAndData extracts the single <COLUMNS> header (tab-separated
// names) and every <DATA> row (tab-separated values), dropping the one
// leading and one trailing tab delimiter, trimming whitespace on each
// segment and right-padding short rows with empty strings so every
// row aligns positionally against the header — no error is raised on
// misalignment (spec.md §4.2).
func parseColumnsAndData(segment string) ([]string, [][]string) {
	var columns []string
	if m := reColumns.FindStringSubmatch(segment); m != nil {
		columns = splitTabLine(m[1])
	}

	var rows [][]string
	for _, m := range reDataLines.FindAllStringSubmatch(segment, -1) {
		row := splitTabLine(m[1])
		if len(columns) > 0 {
			for len(row) < len(columns) {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return columns, rows
}

func splitTabLine(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "\t"), "\t")
	fields := strings.Split(line, "\t")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

func metadataType(tag string) string {
	tag = strings.TrimPrefix(tag, "<")
	tag = strings.TrimSuffix(tag, ">")
	if idx := strings.IndexAny(tag, " \t"); idx >= 0 {
		return tag[:idx]
	}
	return tag
}

func attrsOf(tag string) map[string]string {
	attrs := map[string]string{}
	for _, m := range reTagAttrs.FindAllStringSubmatch(tag, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
