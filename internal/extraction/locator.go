package extraction

import "context"

// Locator wraps one OCR engine behind a stable contract: it turns a page
// image into tokens with positions and per-token confidence. Exactly one
// implementation is bound at startup; engines are swappable without
// touching extractor logic.
//
// Locate must honor ctx cancellation. A Locator that cannot operate at
// all returns an error wrapping ErrEngineUnavailable, which degrades the
// run instead of failing the upload.
type Locator interface {
	// Locate runs OCR over one page and returns its tokens in reading order.
	Locate(ctx context.Context, page *PageImage) ([]Token, error)
	// Close releases engine resources.
	Close() error
}
