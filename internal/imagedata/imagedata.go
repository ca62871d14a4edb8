// Package imagedata decodes the base64 data URIs clients use to upload
// recipe images and avatars:
//
//	data:image/png;base64,iVBORw0KGgo...
//
// The declared media type is not trusted. The payload is sniffed and must
// be one of the raster formats in allowedTypes; the stored extension comes
// from the sniffed type. SVG is rejected because it can carry script.
package imagedata

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sakif/foodgram/internal/apperror"
)

// MaxSize is the largest decoded image accepted.
const MaxSize = 10 << 20

// allowedTypes maps accepted sniffed media types to file extensions.
var allowedTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Image is a decoded upload.
type Image struct {
	Data        []byte
	ContentType string // e.g. "image/png"
	Ext         string // e.g. "png", without the dot
}

// Decode parses a data URI. field names the request field for error
// reporting ("image", "avatar").
func Decode(field, uri string) (*Image, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, apperror.ValidationFailed(field, field+" must be a base64 data URI of an image")
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxSize+3 {
		return nil, apperror.ValidationFailed(field, field+" is too large")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperror.ValidationFailed(field, field+" is not valid base64")
	}
	if len(data) == 0 {
		return nil, apperror.ValidationFailed(field, field+" is empty")
	}
	if len(data) > MaxSize {
		return nil, apperror.ValidationFailed(field, field+" is too large")
	}

	contentType := mimetype.Detect(data).String()
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, apperror.ValidationFailed(field, field+" must be a PNG, JPEG, GIF or WebP image")
	}

	return &Image{
		Data:        data,
		ContentType: contentType,
		Ext:         ext,
	}, nil
}
