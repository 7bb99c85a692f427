package photo

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/webp"

	"github.com/retssync/retsd/internal/models"
)

// VariantSpec pairs a size variant with its width cap and WebP quality,
// the ladder spec.md §4.8 names.
type VariantSpec struct {
	Variant models.Variant
	Width   int // 0 means re-encode only, no resize
	Quality float32
}

// Ladder is the five-variant size ladder, widest-first.
var Ladder = []VariantSpec{
	{models.VariantOriginal, 0, 90},
	{models.VariantLarge, 1920, 85},
	{models.VariantMedium, 1280, 80},
	{models.VariantSmall, 800, 75},
	{models.VariantThumb, 400, 70},
}

// classLongNames maps the Property class short names to the directory
// names the cache tree and object store key space use (spec.md §4.8).
var classLongNames = map[string]string{
	"RE_1": "Residential",
	"MF_4": "MultiFamily",
	"CI_3": "Commercial",
	"LD_2": "Land",
}

// ClassLongName resolves a class short name to its directory name,
// falling back to the short name itself for classes outside the map.
func ClassLongName(className string) string {
	if long, ok := classLongNames[className]; ok {
		return long
	}
	return className
}

// EncodedVariant is one rendered size variant, ready to write to disk and
// upload.
type EncodedVariant struct {
	Variant models.Variant
	Data    []byte
	Width   int
	Height  int
}

// RenderVariants decodes a source photo and produces every variant in the
// ladder, clamping each variant's target width to the source's own width so
// resize never enlarges (spec.md §4.8) — a narrower-than-cap source still
// yields all five variants, just at its native width, since a PhotoJob
// marked completed implies every variant was written (spec.md §3.2, §8).
// If the decoder can't read the source bytes directly, it retries against
// the payload recovered past the JPEG start-of-image marker, the same
// vendor-framing problem FetchResourcePhotosWithMagicExtraction solves for
// Agent/Office photos (spec.md §4.7, §4.8: "re-encode to JPEG ... and
// retry"). Variants are rendered concurrently, one goroutine per ladder
// entry (spec.md §5: "variants within one listing are produced in
// parallel").
func RenderVariants(data []byte) ([]EncodedVariant, [3]uint8, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		framed, ferr := recoverFramedJPEG(data)
		if ferr != nil {
			return nil, [3]uint8{}, fmt.Errorf("decode source photo: %w", err)
		}
		src, _, err = image.Decode(bytes.NewReader(framed))
		if err != nil {
			return nil, [3]uint8{}, fmt.Errorf("decode framed source photo: %w", err)
		}
	}

	dominant := dominantColor(src)
	srcWidth := src.Bounds().Dx()

	results := make([]EncodedVariant, len(Ladder))
	g, _ := errgroup.WithContext(context.Background())
	for i, spec := range Ladder {
		i, spec := i, spec
		g.Go(func() error {
			resized := src
			if spec.Width > 0 {
				w := spec.Width
				if w > srcWidth {
					w = srcWidth
				}
				resized = imaging.Resize(src, w, 0, imaging.Lanczos)
			}

			var buf bytes.Buffer
			if err := webp.Encode(&buf, resized, &webp.Options{Quality: spec.Quality}); err != nil {
				return fmt.Errorf("encode %s variant: %w", spec.Variant, err)
			}

			bounds := resized.Bounds()
			results[i] = EncodedVariant{
				Variant: spec.Variant,
				Data:    buf.Bytes(),
				Width:   bounds.Dx(),
				Height:  bounds.Dy(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dominant, err
	}
	return results, dominant, nil
}

// recoverFramedJPEG locates the JPEG start-of-image marker within data and
// returns the bytes from there on. It only helps when the marker sits past
// offset 0: a marker already at the front means image.Decode's first
// attempt already read these exact bytes and failed for some other reason
// (truncation, corruption), so retrying the identical buffer would just
// reproduce the same error.
func recoverFramedJPEG(data []byte) ([]byte, error) {
	idx := bytes.Index(data, jpegMagic)
	if idx <= 0 {
		return nil, fmt.Errorf("no recoverable JPEG marker in source")
	}
	return data[idx:], nil
}

// dominantColor computes the average RGB of the decoded image (spec.md
// §4.8) over a fixed sampling grid: the scan strides across roughly 32x32
// sample points instead of reading every pixel.
func dominantColor(img image.Image) [3]uint8 {
	bounds := img.Bounds()
	const gridSize = 32
	strideX := maxInt(bounds.Dx()/gridSize, 1)
	strideY := maxInt(bounds.Dy()/gridSize, 1)

	var rSum, gSum, bSum, count uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += strideY {
		for x := bounds.Min.X; x < bounds.Max.X; x += strideX {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			count++
		}
	}
	if count == 0 {
		return [3]uint8{0, 0, 0}
	}
	return [3]uint8{uint8(rSum / count), uint8(gSum / count), uint8(bSum / count)}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
