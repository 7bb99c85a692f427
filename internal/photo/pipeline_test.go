package photo

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/rets"
)

// multipartPhotoServer serves a single GetObject response bundling every
// JPEG in photos as one part keyed by its Object-ID, the way the teacher's RETS test doubles serve
// fixed RETS-RESPONSE/search payloads (see internal/syncengine's own
// httptest.NewServer use).
func multipartPhotoServer(t *testing.T, photos map[string][]byte) *httptest.Server {
	t.Helper()
	const boundary = "photo_boundary"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", fmt.Sprintf(`multipart/mixed; boundary="%s"`, boundary))
		for objectID, data := range photos {
			fmt.Fprintf(w, "--%s\r\n", boundary)
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Object-ID: %s\r\n", objectID)
			fmt.Fprintf(w, "\r\n")
			w.Write(data)
			fmt.Fprintf(w, "\r\n")
		}
		fmt.Fprintf(w, "--%s--\r\n", boundary)
	}))
}

func TestPipelineProcessStagesVariantsAndSidecar(t *testing.T) {
	photo := solidJPEG(t, 300, 200, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	server := multipartPhotoServer(t, map[string][]byte{"1": photo})
	defer server.Close()

	client := rets.NewClient(rets.Config{
		LoginURL:  server.URL,
		CachePath: filepath.Join(t.TempDir(), "session.json"),
	}, nil)
	session := &rets.Session{Capabilities: map[string]string{"GetObject": server.URL}}

	cacheDir := t.TempDir()
	p := NewPipeline(client, cacheDir)

	processed, err := p.Process(context.Background(), session, "RE_1", "1001")
	require.NoError(t, err)
	require.Len(t, processed, 1)

	record := processed[0]
	assert.Equal(t, "1", record.ObjectID)
	assert.NotEmpty(t, record.Variants)
	for _, v := range record.Variants {
		assert.Equal(t, "webp", v.Format)
		assert.Positive(t, v.ByteSize)
	}

	dir := p.StagingDir("Residential", "1001")
	assert.Equal(t, filepath.Join(cacheDir, "Residential", "1001"), dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var sawSidecar bool
	var webpCount int
	for _, e := range entries {
		if e.Name() == "metadata.json" {
			sawSidecar = true
			continue
		}
		if filepath.Ext(e.Name()) == ".webp" {
			webpCount++
		}
	}
	assert.True(t, sawSidecar)
	assert.Equal(t, len(record.Variants), webpCount)

	sidecar, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var fromDisk []models.ProcessedPhoto
	require.NoError(t, json.Unmarshal(sidecar, &fromDisk))
	require.Len(t, fromDisk, 1)
	assert.Equal(t, "1", fromDisk[0].ObjectID)
}

func TestPipelineProcessReturnsNilWhenNoPhotos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := rets.NewClient(rets.Config{
		LoginURL:  server.URL,
		CachePath: filepath.Join(t.TempDir(), "session.json"),
	}, nil)
	session := &rets.Session{Capabilities: map[string]string{"GetObject": server.URL}}

	p := NewPipeline(client, t.TempDir())
	processed, err := p.Process(context.Background(), session, "RE_1", "2002")
	require.NoError(t, err)
	assert.Nil(t, processed)
}
