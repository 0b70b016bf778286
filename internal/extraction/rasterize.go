package extraction

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer converts document bytes into one PageImage per page.
type Rasterizer interface {
	Rasterize(pdfData []byte) ([]*PageImage, error)
}

// FitzRasterizer renders PDF pages to PNG via MuPDF at a fixed DPI.
type FitzRasterizer struct {
	dpi      float64
	maxPages int
}

// NewFitzRasterizer creates a rasterizer. The page cap bounds OCR cost
// for oversized documents.
func NewFitzRasterizer(dpi float64, maxPages int) *FitzRasterizer {
	if dpi <= 0 {
		dpi = 300
	}
	if maxPages <= 0 {
		maxPages = 20
	}
	return &FitzRasterizer{dpi: dpi, maxPages: maxPages}
}

// Rasterize renders every page of the PDF. It returns ErrUnreadablePDF
// for malformed or encrypted input and ErrPageLimitExceeded when the
// document has more pages than the configured maximum.
func (r *FitzRasterizer) Rasterize(pdfData []byte) ([]*PageImage, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %v", ErrUnreadablePDF, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrUnreadablePDF)
	}
	if pageCount > r.maxPages {
		return nil, fmt.Errorf("%w: document has %d pages, maximum is %d", ErrPageLimitExceeded, pageCount, r.maxPages)
	}

	pages := make([]*PageImage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: rendering page %d: %v", ErrUnreadablePDF, i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding page %d: %w", i+1, err)
		}

		bounds := img.Bounds()
		pages = append(pages, &PageImage{
			Index:  i + 1,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Data:   buf.Bytes(),
		})
	}

	return pages, nil
}
