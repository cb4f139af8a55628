package validation

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func encode(t *testing.T, format string, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch format {
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}))
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	case "webp":
		require.NoError(t, webp.Encode(&buf, img, &webp.Options{Quality: 80}))
	case "gif":
		require.NoError(t, gif.Encode(&buf, img, nil))
	}
	return buf.Bytes()
}

// withOrientation splices a minimal EXIF APP1 segment carrying the given
// orientation right after the JPEG SOI marker
func withOrientation(jpg []byte, o uint16) []byte {
	var tiff bytes.Buffer
	tiff.WriteString("MM\x00\x2a")
	_ = binary.Write(&tiff, binary.BigEndian, uint32(8))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(1))      // entries
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0x0112)) // orientation
	_ = binary.Write(&tiff, binary.BigEndian, uint16(3))      // SHORT
	_ = binary.Write(&tiff, binary.BigEndian, uint32(1))
	_ = binary.Write(&tiff, binary.BigEndian, o)
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(0)) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := append([]byte{}, jpg[:2]...)
	out = append(out, seg...)
	return append(out, jpg[2:]...)
}

func TestNew(t *testing.T) {
	v := New()
	require.NotNil(t, v)
	assert.Equal(t, DefaultConfig(), v.Config())
}

func TestNewWithConfigDefaults(t *testing.T) {
	v := NewWithConfig(Config{MinWidth: 10, MinHeight: 10})
	assert.Equal(t, DefaultConfig().MaxBytes, v.Config().MaxBytes)
	assert.Equal(t, DefaultConfig().SupportedFormats, v.Config().SupportedFormats)
	assert.Equal(t, 10, v.Config().MinWidth)
}

func TestValidateFormats(t *testing.T) {
	v := New()
	img := createTestImage(800, 1000)
	for _, format := range []string{"jpeg", "png", "webp"} {
		t.Run(format, func(t *testing.T) {
			r := v.Validate(File{Name: "portrait." + format, Data: encode(t, format, img)})
			assert.True(t, r.Valid, "errors: %v", r.Errors)
			assert.Equal(t, format, r.Format)
			assert.Equal(t, 800, r.Width)
			assert.Equal(t, 1000, r.Height)
			assert.Empty(t, r.Warnings)
		})
	}
}

func TestValidateRejectsUnsupported(t *testing.T) {
	v := New()

	r := v.Validate(File{Name: "a.gif", Data: encode(t, "gif", createTestImage(800, 1000))})
	assert.False(t, r.Valid)
	assert.Equal(t, "image/gif", r.MIME)

	r = v.Validate(File{Name: "notes.jpg", Data: []byte("just some text pretending to be a photo")})
	assert.False(t, r.Valid)
	assert.NotEmpty(t, r.Errors)
}

func TestValidateEmptyAndOversized(t *testing.T) {
	r := New().Validate(File{Name: "x.jpg"})
	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "empty")

	v := NewWithConfig(Config{MaxBytes: 100})
	r = v.Validate(File{Name: "x.png", Data: encode(t, "png", createTestImage(400, 400))})
	assert.False(t, r.Valid)
}

func TestValidateDimensions(t *testing.T) {
	v := New()

	small := v.Validate(File{Name: "s.png", Data: encode(t, "png", createTestImage(200, 250))})
	assert.False(t, small.Valid)
	assert.Contains(t, small.Errors[0], "too small")

	medium := v.Validate(File{Name: "m.png", Data: encode(t, "png", createTestImage(400, 500))})
	assert.True(t, medium.Valid)
	require.Len(t, medium.Warnings, 1)
	assert.Contains(t, medium.Warnings[0], "better prints")
}

func TestValidateCorruptData(t *testing.T) {
	data := encode(t, "png", createTestImage(800, 1000))
	r := New().Validate(File{Name: "c.png", Data: data[:20]})
	assert.False(t, r.Valid)
}

func TestValidateExtensionMismatch(t *testing.T) {
	r := New().Validate(File{Name: "photo.png", Data: encode(t, "jpeg", createTestImage(800, 1000))})
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "extension")
}

func TestValidateOrientationWarning(t *testing.T) {
	data := withOrientation(encode(t, "jpeg", createTestImage(1000, 800)), 6)
	r := New().Validate(File{Name: "rotated.jpg", Data: data})

	assert.True(t, r.Valid, "errors: %v", r.Errors)
	assert.Equal(t, 6, r.Orientation)
	assert.Equal(t, 800, r.Width)
	assert.Equal(t, 1000, r.Height)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "orientation")
}

func BenchmarkValidate(b *testing.B) {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, createTestImage(1200, 1600), nil)
	v := New()
	f := File{Name: "bench.jpg", Data: buf.Bytes()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Validate(f)
	}
}
