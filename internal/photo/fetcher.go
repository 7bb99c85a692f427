// Package photo implements the Photo Fetcher (C7) and Image Pipeline (C8)
// described in spec.md §4.7-4.8: pulling multipart/mixed photo bundles from
// the RETS server and deriving the five-variant WebP ladder.
package photo

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/retssync/retsd/internal/rets"
)

// minBodyLength below which a GetObject response is treated as "no photos"
// regardless of its Content-Type (spec.md §4.7 step 4).
const minBodyLength = 100

var reBoundary = regexp.MustCompile(`boundary="?([^;"]+)"?`)

// jpegMagic is the JPEG start-of-image marker the Agent/Office helper
// scans for within each part (spec.md §4.7, closing paragraph).
var jpegMagic = []byte{0xFF, 0xD8}

// Photo is one fetched image part: its binary payload and the protocol
// headers that accompanied it.
type Photo struct {
	ObjectID string
	Data     []byte
	Headers  map[string]string
}

// FetchPropertyPhotos pulls every photo bundled for one Property listing.
// Parts are emitted verbatim; the photo-fetcher contract never scans for
// JPEG magic bytes here because the boundary framing is authoritative for
// this resource (spec.md §4.7 step 3).
func FetchPropertyPhotos(ctx context.Context, client *rets.Client, session *rets.Session, listingID string) ([]Photo, error) {
	body, headers, err := getObject(ctx, client, session, "Property", listingID)
	if err != nil {
		return nil, err
	}
	if len(body) < minBodyLength {
		return nil, nil
	}

	boundary, ok := extractBoundary(headers)
	if !ok {
		return []Photo{{ObjectID: listingID, Data: body}}, nil
	}

	parts := splitMultipart(body, boundary)
	photos := make([]Photo, 0, len(parts))
	for _, p := range parts {
		if !strings.HasPrefix(strings.ToLower(p.headers["content-type"]), "image/") {
			continue
		}
		photos = append(photos, Photo{
			ObjectID: orDefault(p.headers["object-id"], listingID),
			Data:     p.data,
			Headers:  relevantHeaders(p.headers),
		})
	}
	return photos, nil
}

// FetchResourcePhotosWithMagicExtraction is the Agent/Office sibling of
// FetchPropertyPhotos: those servers prepend extra framing ahead of the
// JPEG payload within each part, so the payload is recovered by locating
// the FF D8 start-of-image marker rather than trusting the part body
// verbatim (spec.md §4.7, closing paragraph).
func FetchResourcePhotosWithMagicExtraction(ctx context.Context, client *rets.Client, session *rets.Session, resource, id string) ([]Photo, error) {
	capURL, err := client.Capability(session, "GetObject")
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("Resource", resource)
	q.Set("Type", "Photo")
	q.Set("ID", id+":*")
	q.Set("Location", "0")

	body, headerSet, err := client.AuthenticatedRequest(ctx, session, capURL, q)
	if err != nil {
		return nil, err
	}
	if len(body) < minBodyLength {
		return nil, nil
	}

	headers := map[string]string{"content-type": headerSet.Get("Content-Type")}
	boundary, ok := extractBoundary(headers)
	if !ok {
		if idx := bytes.Index(body, jpegMagic); idx >= 0 {
			return []Photo{{ObjectID: id, Data: body[idx:]}}, nil
		}
		return nil, nil
	}

	parts := splitMultipart(body, boundary)
	photos := make([]Photo, 0, len(parts))
	for _, p := range parts {
		idx := bytes.Index(p.data, jpegMagic)
		if idx < 0 {
			continue
		}
		photos = append(photos, Photo{
			ObjectID: orDefault(p.headers["object-id"], id),
			Data:     p.data[idx:],
			Headers:  relevantHeaders(p.headers),
		})
	}
	return photos, nil
}

func getObject(ctx context.Context, client *rets.Client, session *rets.Session, resource, id string) ([]byte, map[string]string, error) {
	q := url.Values{}
	q.Set("Resource", resource)
	q.Set("Type", "Photo")
	q.Set("ID", id+":*")

	capURL, err := client.Capability(session, "GetObject")
	if err != nil {
		return nil, nil, err
	}
	body, header, err := client.AuthenticatedRequest(ctx, session, capURL, q)
	if err != nil {
		return nil, nil, err
	}
	return body, map[string]string{"content-type": header.Get("Content-Type")}, nil
}

func extractBoundary(headers map[string]string) (string, bool) {
	ct := headers["content-type"]
	m := reBoundary.FindStringSubmatch(ct)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// part is one multipart segment: its parsed header lines and raw data.
type part struct {
	headers map[string]string
	data    []byte
}

// splitMultipart performs a zero-copy scan of body by the literal boundary
// marker, per spec.md §9 ("not a generic MIME parser"). Each segment's
// header block is parsed line by line until the first blank line; the
// remainder is the part's binary payload.
func splitMultipart(body []byte, boundary string) []part {
	marker := []byte("--" + boundary)
	segments := bytes.Split(body, marker)

	var parts []part
	for _, seg := range segments {
		seg = bytes.Trim(seg, "\r\n")
		if len(seg) == 0 || bytes.Equal(seg, []byte("--")) {
			continue
		}

		sep := bytes.Index(seg, []byte("\r\n\r\n"))
		sepLen := 4
		if sep < 0 {
			sep = bytes.Index(seg, []byte("\n\n"))
			sepLen = 2
		}
		if sep < 0 {
			continue
		}

		headerBlock := seg[:sep]
		data := seg[sep+sepLen:]
		parts = append(parts, part{headers: parseHeaders(headerBlock), data: data})
	}
	return parts
}

func parseHeaders(block []byte) map[string]string {
	headers := map[string]string{}
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(string(line[:idx])))
		value := strings.TrimSpace(string(line[idx+1:]))
		headers[key] = value
	}
	return headers
}

// relevantHeaders extracts the fields spec.md §4.7 names, plus anything
// prefixed X- (passthrough headers copied into the metadata sidecar).
func relevantHeaders(headers map[string]string) map[string]string {
	out := map[string]string{}
	for _, k := range []string{"object-id", "last-modified", "content-sub-description", "content-label", "accessibility", "photo-timestamp"} {
		if v, ok := headers[k]; ok {
			out[k] = v
		}
	}
	for k, v := range headers {
		if strings.HasPrefix(k, "x-") {
			out[k] = v
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
