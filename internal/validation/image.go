package validation

import (
	"bytes"
	"image"
	"io"

	// Decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/sakif/payapp/internal/apperror"
)

// MaxImageBytes is the avatar upload limit.
const MaxImageBytes = 5 * 1024 * 1024

const (
	msgImageTooLarge = "Image file too large (max 5MB)."
	msgImageInvalid  = "File must be a valid image."
)

// Image reads an uploaded avatar and checks it is a decodable raster image
// no larger than MaxImageBytes. It returns the bytes read and the format name
// reported by the decoder ("png", "jpeg", "gif", "webp").
//
// At most MaxImageBytes+1 bytes are read, so an oversized upload is rejected
// without buffering all of it.
func Image(r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, "", apperror.ValidationFailed("avatar", msgImageInvalid)
	}
	if len(data) > MaxImageBytes {
		return nil, "", apperror.ValidationFailed("avatar", msgImageTooLarge)
	}
	if len(data) == 0 {
		return nil, "", apperror.ValidationFailed("avatar", msgImageInvalid)
	}

	// Decode the whole image, not just the header: a truncated file has a
	// valid header but fails here.
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperror.ValidationFailed("avatar", msgImageInvalid)
	}
	return data, format, nil
}

// ContentType maps a decoder format name to its MIME type.
func ContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension maps a decoder format name to a file extension with a leading dot.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	default:
		return ""
	}
}
