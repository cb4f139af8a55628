package processing

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/idphoto/pkg/types"
)

// createTestImage creates a gradient test image
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	return img
}

func fill(img *image.NRGBA, c color.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
}

func TestExactCropSizeIndependentOfRect(t *testing.T) {
	img := createTestImage(1200, 1600)
	rects := []types.Rectangle{
		{X: 10, Y: 10, Width: 50, Height: 70},
		{X: 100, Y: 200, Width: 800, Height: 1120},
		{X: 0, Y: 0, Width: 1200, Height: 1600},
	}
	want := map[string][2]int{
		"25x35": {295, 413},
		"35x49": {413, 579},
		"35x52": {413, 614},
	}

	for _, size := range types.SizeSpecs() {
		for _, r := range rects {
			out, err := ExactCrop(img, r, size, 300)
			require.NoError(t, err)
			assert.Equal(t, want[size.ID][0], out.Bounds().Dx(), "width for %s", size.ID)
			assert.Equal(t, want[size.ID][1], out.Bounds().Dy(), "height for %s", size.ID)
		}
	}
}

func TestExactCropErrors(t *testing.T) {
	img := createTestImage(100, 100)

	_, err := ExactCrop(img, types.Rectangle{X: 500, Y: 500, Width: 10, Height: 10}, types.Size25x35, 300)
	assert.ErrorIs(t, err, ErrEmptyRegion)

	_, err = ExactCrop(img, types.Rectangle{Width: 10, Height: 10}, types.Size25x35, 0)
	assert.Error(t, err)
}

func TestCropRegionClipsToBounds(t *testing.T) {
	img := createTestImage(200, 100)
	out, err := CropRegion(img, types.Rectangle{X: 150, Y: 50, Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), out.Bounds())
}

func TestCropRegionOffsetBounds(t *testing.T) {
	img := createTestImage(200, 200).SubImage(image.Rect(100, 100, 200, 200))
	out, err := CropRegion(img, types.Rectangle{X: 0, Y: 0, Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, out.Bounds().Dx())
	assert.Equal(t, img.At(100, 100), out.At(0, 0))
}

func TestApplyBackground(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 0})
	img.SetNRGBA(2, 0, color.NRGBA{R: 200, G: 0, B: 0, A: 128})

	bg := color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	out := ApplyBackground(img, bg)

	assert.Equal(t, color.NRGBA{R: 200, G: 10, B: 10, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, bg, out.NRGBAAt(1, 0))

	mid := out.NRGBAAt(2, 0)
	assert.InDelta(t, 100, int(mid.R), 1)
	assert.InDelta(t, 127, int(mid.B), 1)
	assert.Equal(t, uint8(255), mid.A)
}

func TestApplyBackgroundIsOpaque(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	out := ApplyBackground(img, color.White)
	for i := 3; i < len(out.Pix); i += 4 {
		require.Equal(t, uint8(255), out.Pix[i])
	}
}

func TestThumbnail(t *testing.T) {
	img := createTestImage(800, 400)
	thumb := Thumbnail(img, 200)
	assert.Equal(t, image.Rect(0, 0, 200, 100), thumb.Bounds())

	tall := Thumbnail(createTestImage(300, 900), 90)
	assert.Equal(t, image.Rect(0, 0, 30, 90), tall.Bounds())

	small := Thumbnail(createTestImage(50, 40), 200)
	assert.Equal(t, image.Rect(0, 0, 50, 40), small.Bounds())
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"white", color.NRGBA{255, 255, 255, 255}},
		{"  Red ", color.NRGBA{0xd9, 0x35, 0x2f, 255}},
		{"gray", color.NRGBA{0xd3, 0xd3, 0xd3, 255}},
		{"#102030", color.NRGBA{0x10, 0x20, 0x30, 255}},
		{"00ff00", color.NRGBA{0, 255, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseColor("chartreuse-ish")
	assert.Error(t, err)
}

func TestBackgroundPresets(t *testing.T) {
	names := BackgroundPresets()
	assert.Contains(t, names, "white")
	assert.Contains(t, names, "light-blue")
	for _, n := range names {
		_, err := ParseColor(n)
		assert.NoError(t, err, n)
	}
	assert.Equal(t, "#ffffff", HexColor(color.White))
}

func TestEncodeDecode(t *testing.T) {
	img := createTestImage(64, 48)
	for _, format := range []string{"jpg", "png", "webp"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, img, format, 90))

			decoded, err := Decode(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, 64, decoded.Bounds().Dx())
			assert.Equal(t, 48, decoded.Bounds().Dy())
		})
	}

	assert.Error(t, Encode(&bytes.Buffer{}, img, "tiff", 90))
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, p.SaveImage(createTestImage(30, 40), path, "png", 0))

	img, err := p.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 40), img.Bounds())

	_, err = p.LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	var png bytes.Buffer
	require.NoError(t, Encode(&png, createTestImage(10, 10), "png", 0))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png.Bytes())
	}))
	defer srv.Close()

	p := NewProcessor()
	data, err := p.Fetch(context.Background(), srv.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, png.Bytes(), data)

	_, err = p.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "local.png")
	require.NoError(t, os.WriteFile(path, png.Bytes(), 0o644))
	data, err = p.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, data, png.Len())
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	p := NewProcessor()
	p.maxDownloadBytes = 32
	_, err := p.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestCreateDebugOverlay(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	fill(img, color.NRGBA{0, 0, 0, 255})
	face := &types.FaceBox{Rectangle: types.Rectangle{X: 100, Y: 100, Width: 100, Height: 100}}
	crop := types.Rectangle{X: 50, Y: 20, Width: 200, Height: 280}

	out := CreateDebugOverlay(img, face, crop)

	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, out.NRGBAAt(150, 100))
	assert.Equal(t, color.NRGBA{255, 204, 0, 255}, out.NRGBAAt(50, 150))
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, out.NRGBAAt(150, 160))
	// source untouched
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, img.NRGBAAt(150, 100))
}
