package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
)

// DecodeImagePage decodes a photographed invoice (JPEG, PNG, GIF, HEIC,
// HEIF) into a single PageImage so image uploads ride the same pipeline
// as PDFs.
func DecodeImagePage(imageData []byte, contentType string) (*PageImage, error) {
	var img image.Image
	var err error

	// HEIC/HEIF is common on phones and not supported by the standard
	// image package.
	if isHEICFormat(imageData) || isHEICMimeType(contentType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding heic image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}

	bounds := img.Bounds()
	return &PageImage{
		Index:  1,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   buf.Bytes(),
	}, nil
}

// IsImageContentType reports whether the MIME type is a supported
// invoice photo format.
func IsImageContentType(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/heic", "image/heif":
		return true
	}
	return false
}

// isHEICFormat checks the ftyp box brands HEIC files start with.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
