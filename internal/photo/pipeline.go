package photo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/objectstore"
	"github.com/retssync/retsd/internal/rets"
)

// Pipeline runs C7 (fetch) → C8 (variants) for one listing, staging the
// result under cacheDir and returning the processed-photo records the
// scheduler persists as PhotoJob.PhotoDataJSON (spec.md §4.10 step 4).
type Pipeline struct {
	client  *rets.Client
	cacheDir string
}

// NewPipeline wires the photo pipeline to its RETS client and the local
// staging root (spec.md §6.5: cache/Photos/...).
func NewPipeline(client *rets.Client, cacheDir string) *Pipeline {
	return &Pipeline{client: client, cacheDir: cacheDir}
}

// StagingDir returns the directory variants for one listing are staged
// under, which Object Store Sync removes once upload is confirmed.
func (p *Pipeline) StagingDir(classLongName, listingID string) string {
	return filepath.Join(p.cacheDir, classLongName, listingID)
}

// Process fetches every Property photo for listingID, renders the variant
// ladder for each, writes them to the staging directory with a metadata.json
// sidecar, and returns the processed-photo records.
func (p *Pipeline) Process(ctx context.Context, session *rets.Session, className, listingID string) ([]models.ProcessedPhoto, error) {
	classLongName := ClassLongName(className)

	photos, err := FetchPropertyPhotos(ctx, p.client, session, listingID)
	if err != nil {
		return nil, fmt.Errorf("fetch photos: %w", err)
	}
	if len(photos) == 0 {
		return nil, nil
	}

	dir := p.StagingDir(classLongName, listingID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	var processed []models.ProcessedPhoto
	for _, photo := range photos {
		variants, dominant, err := RenderVariants(photo.Data)
		if err != nil {
			return nil, fmt.Errorf("render variants for object %s: %w", photo.ObjectID, err)
		}

		record := models.ProcessedPhoto{
			ObjectID:         photo.ObjectID,
			DominantColorRGB: dominant,
			SourceHeaders:    photo.Headers,
		}
		for _, v := range variants {
			filename := fmt.Sprintf("%s-%s.webp", v.Variant, photo.ObjectID)
			if err := os.WriteFile(filepath.Join(dir, filename), v.Data, 0o644); err != nil {
				return nil, fmt.Errorf("write variant %s: %w", filename, err)
			}
			record.Variants = append(record.Variants, models.VariantAsset{
				Variant:  v.Variant,
				URL:      objectstore.Key(classLongName, listingID, v.Variant, photo.ObjectID),
				Width:    v.Width,
				Height:   v.Height,
				ByteSize: len(v.Data),
				Format:   "webp",
			})
		}
		processed = append(processed, record)
	}

	if err := p.writeSidecar(dir, processed); err != nil {
		return nil, fmt.Errorf("write metadata sidecar: %w", err)
	}
	return processed, nil
}

func (p *Pipeline) writeSidecar(dir string, processed []models.ProcessedPhoto) error {
	data, err := json.MarshalIndent(processed, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644)
}
