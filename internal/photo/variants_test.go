package photo

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassLongNameMapsKnownClasses(t *testing.T) {
	assert.Equal(t, "Residential", ClassLongName("RE_1"))
	assert.Equal(t, "MultiFamily", ClassLongName("MF_4"))
	assert.Equal(t, "Commercial", ClassLongName("CI_3"))
	assert.Equal(t, "Land", ClassLongName("LD_2"))
	assert.Equal(t, "XX_9", ClassLongName("XX_9"), "unknown class falls back to itself")
}

func solidJPEG(t *testing.T, width, height int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestRenderVariantsClampsWidthInsteadOfSkipping(t *testing.T) {
	data := solidJPEG(t, 300, 200, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	variants, dominant, err := RenderVariants(data)
	require.NoError(t, err)

	// A PhotoJob marked completed implies all five variants were written,
	// so every ladder entry must appear even though the 300px source is
	// narrower than every capped width above it — resize never enlarges,
	// but the variant is still emitted at the source's own width.
	require.Len(t, variants, len(Ladder))
	widths := map[string]int{}
	for _, v := range variants {
		widths[string(v.Variant)] = v.Width
	}
	assert.Equal(t, 300, widths["original"])
	assert.Equal(t, 300, widths["large"], "large cap 1920 exceeds source; clamped to source width instead of upscaled")
	assert.Equal(t, 300, widths["thumb"], "thumb cap 400 exceeds source; clamped to source width")

	assert.InDelta(t, 200, int(dominant[0]), 15)
	assert.InDelta(t, 100, int(dominant[1]), 15)
	assert.InDelta(t, 50, int(dominant[2]), 15)
}

func TestRenderVariantsResizesDownWhenSourceExceedsCap(t *testing.T) {
	data := solidJPEG(t, 2000, 1000, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	variants, _, err := RenderVariants(data)
	require.NoError(t, err)
	require.Len(t, variants, len(Ladder))

	widths := map[string]int{}
	for _, v := range variants {
		widths[string(v.Variant)] = v.Width
	}
	assert.Equal(t, 2000, widths["original"])
	assert.Equal(t, 1920, widths["large"])
	assert.Equal(t, 1280, widths["medium"])
	assert.Equal(t, 800, widths["small"])
	assert.Equal(t, 400, widths["thumb"])
}

func TestRenderVariantsRecoversJPEGBehindVendorFraming(t *testing.T) {
	inner := solidJPEG(t, 120, 80, color.RGBA{R: 5, G: 6, B: 7, A: 255})
	framed := append([]byte("VENDORFRAMINGBYTESBEFOREPAYLOAD"), inner...)

	variants, _, err := RenderVariants(framed)
	require.NoError(t, err)
	assert.Len(t, variants, len(Ladder))
}

func TestRenderVariantsFailsOnUnrecoverableGarbage(t *testing.T) {
	_, _, err := RenderVariants([]byte("not an image at all"))
	assert.Error(t, err)
}
