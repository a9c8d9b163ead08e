package imageinput

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"strings"
	"testing"

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"github.com/MeKo-Tech/evalocr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_AcceptsAllowedFormats(t *testing.T) {
	src := testutil.BlankImage(40, 20)
	cases := []struct {
		name   string
		data   []byte
		format string
	}{
		{"png", testutil.EncodePNG(t, src), "png"},
		{"jpeg", testutil.EncodeJPEG(t, src), "jpeg"},
		{"gif", testutil.EncodeGIF(t, src), "gif"},
		{"bmp", testutil.EncodeBMP(t, src), "bmp"},
	}

	v := NewValidator(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(FromBytes(tc.data, ""))
			require.NoError(t, res.Err)
			assert.True(t, res.Valid)
			assert.Equal(t, tc.format, res.Format)
			assert.Equal(t, 40, res.Width)
			assert.Equal(t, 20, res.Height)
			assert.Equal(t, int64(len(tc.data)), res.Size)
		})
	}
}

func TestValidator_RejectsOversizedPayload(t *testing.T) {
	data := testutil.TextPNG(t, "Hello")
	v := NewValidator(10)

	err := v.Check(FromBytes(data, "image/png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ocrerr.ErrPayloadTooLarge)
	assert.Contains(t, err.Error(), "the limit is 10 bytes")
}

// pngHeader returns a grayscale PNG that declares width x height pixels
// and carries no image data.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth; color type 0, compression, filter and interlace stay zero

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestValidator_RejectsDecodedSizeAboveCeiling(t *testing.T) {
	data := pngHeader(40000, 40000)
	v := NewValidator(0)
	require.Less(t, int64(len(data)), v.MaxBytes())

	res := v.Validate(FromBytes(data, "image/png"))
	require.Error(t, res.Err)
	assert.False(t, res.Valid)
	assert.Equal(t, ocrerr.KindPayloadTooLarge, ocrerr.KindOf(res.Err))
	assert.ErrorIs(t, res.Err, ocrerr.ErrPayloadTooLarge)
	assert.Contains(t, res.Err.Error(), "40000x40000 pixels")
}

func TestValidator_MaxPixels(t *testing.T) {
	data := testutil.EncodePNG(t, testutil.BlankImage(40, 20))

	assert.Equal(t, DefaultMaxPixels, NewValidator(0).MaxPixels())
	assert.Equal(t, DefaultMaxPixels, NewValidator(0).WithMaxPixels(0).MaxPixels())

	require.NoError(t, NewValidator(0).WithMaxPixels(800).Check(FromBytes(data, "")))

	err := NewValidator(0).WithMaxPixels(799).Check(FromBytes(data, ""))
	assert.Equal(t, ocrerr.KindPayloadTooLarge, ocrerr.KindOf(err))
}

func TestValidator_RejectsUnsupportedType(t *testing.T) {
	v := NewValidator(0)

	err := v.Check(FromBytes([]byte("II*\x00fake tiff"), "image/tiff"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ocrerr.ErrUnsupportedFormat)
	assert.Contains(t, ocrerr.UserMessage(err), "PNG, JPEG, GIF or BMP")
}

func TestValidator_TypeCheckedBeforeSize(t *testing.T) {
	v := NewValidator(4)
	err := v.Check(FromBytes(bytes.Repeat([]byte{1}, 64), "application/pdf"))
	assert.ErrorIs(t, err, ocrerr.ErrUnsupportedFormat)
}

func TestValidator_RejectsEmptyAndCorrupt(t *testing.T) {
	v := NewValidator(0)

	err := v.Check(FromBytes(nil, "image/png"))
	assert.ErrorIs(t, err, ocrerr.ErrInvalidImage)

	err = v.Check(FromBytes([]byte("definitely not a png"), "image/png"))
	assert.ErrorIs(t, err, ocrerr.ErrInvalidImage)
	assert.Contains(t, err.Error(), "could not be decoded")
}

func TestValidator_MIMEParametersAndAliases(t *testing.T) {
	data := testutil.EncodeJPEG(t, testutil.BlankImage(8, 8))
	v := NewValidator(0)

	assert.NoError(t, v.Check(FromBytes(data, "image/JPG")))
	assert.NoError(t, v.Check(FromBytes(data, "image/jpeg; charset=binary")))
}

func TestValidator_DeclaredSizeCountsTowardLimit(t *testing.T) {
	data := testutil.TextPNG(t, "x")
	img := FromBytes(data, "image/png")
	img.DeclaredSize = 1 << 30

	err := NewValidator(0).Check(img)
	assert.ErrorIs(t, err, ocrerr.ErrPayloadTooLarge)
}

func TestFromReader_StopsAfterLimit(t *testing.T) {
	r := strings.NewReader(strings.Repeat("a", 100))
	img, err := FromReader(r, "upload.png", "image/png", 10)
	require.NoError(t, err)
	assert.Len(t, img.Data, 11)

	err = NewValidator(10).Check(img)
	assert.ErrorIs(t, err, ocrerr.ErrPayloadTooLarge)
}

func TestFromDataURI(t *testing.T) {
	data := testutil.TextPNG(t, "data uri")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	img, err := FromDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, "image/png", img.ContentType())
	assert.NoError(t, NewValidator(0).Check(img))

	raw := "data:image/png;base64," + base64.RawStdEncoding.EncodeToString(data)
	img, err = FromDataURI(raw)
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
}

func TestFromDataURI_Errors(t *testing.T) {
	for _, uri := range []string{
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png;base64,@@@@",
	} {
		_, err := FromDataURI(uri)
		assert.ErrorIs(t, err, ocrerr.ErrInvalidImage, uri)
	}
}

func TestFromFile(t *testing.T) {
	data := testutil.TextPNG(t, "file")
	path := testutil.WriteFile(t, "sample.png", data)

	img, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sample.png", img.Name)
	assert.Equal(t, "image/png", img.ContentType())

	_, err = FromFile(path + ".missing")
	assert.Error(t, err)
}

func TestPrepare(t *testing.T) {
	t.Run("png passes through", func(t *testing.T) {
		data := testutil.EncodePNG(t, testutil.BlankImage(30, 10))
		out, err := Prepare(FromBytes(data, ""), PrepareOptions{})
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("jpeg is converted to png", func(t *testing.T) {
		data := testutil.EncodeJPEG(t, testutil.BlankImage(30, 10))
		out, err := Prepare(FromBytes(data, ""), PrepareOptions{})
		require.NoError(t, err)
		_, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
	})

	t.Run("large images are downscaled", func(t *testing.T) {
		data := testutil.EncodePNG(t, testutil.BlankImage(200, 100))
		out, err := Prepare(FromBytes(data, ""), PrepareOptions{MaxSide: 50})
		require.NoError(t, err)
		cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Width)
		assert.Equal(t, 25, cfg.Height)
	})

	t.Run("corrupt input", func(t *testing.T) {
		_, err := Prepare(FromBytes([]byte("nope"), ""), PrepareOptions{})
		assert.Error(t, err)
	})
}
