package extraction

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract words sometimes come back without a usable confidence
// (tesseract reports -1). Those get a conservative default rather than a
// fabricated perfect score.
const tesseractDefaultConfidence = 0.5

// TesseractLocator implements Locator using the local Tesseract engine.
// The native API is not safe for concurrent invocation, so calls are
// serialized through a single-slot mutex.
type TesseractLocator struct {
	lang string
	mu   sync.Mutex
}

// NewTesseractLocator probes the native library and returns a locator
// bound to the given OCR language.
func NewTesseractLocator(lang string) (*TesseractLocator, error) {
	if lang == "" {
		lang = "eng"
	}

	client := gosseract.NewClient()
	defer client.Close()
	if v := client.Version(); v == "" {
		return nil, fmt.Errorf("%w: tesseract library not found", ErrEngineUnavailable)
	}

	return &TesseractLocator{lang: lang}, nil
}

// Locate runs Tesseract over one page image and returns word-level
// tokens in reading order.
func (t *TesseractLocator) Locate(ctx context.Context, page *PageImage) ([]Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	type ocrResult struct {
		boxes []gosseract.BoundingBox
		err   error
	}
	done := make(chan ocrResult, 1)

	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(t.lang); err != nil {
			done <- ocrResult{err: fmt.Errorf("%w: setting language: %v", ErrEngineUnavailable, err)}
			return
		}
		if err := client.SetImageFromBytes(page.Data); err != nil {
			done <- ocrResult{err: fmt.Errorf("setting page image: %w", err)}
			return
		}
		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			done <- ocrResult{err: fmt.Errorf("running tesseract: %w", err)}
			return
		}
		done <- ocrResult{boxes: boxes}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: page %d: %v", ErrPageTimeout, page.Index, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return tokensFromBoxes(res.boxes, page.Index), nil
	}
}

// Close releases engine resources. Tesseract clients are per-call, so
// there is nothing held between invocations.
func (t *TesseractLocator) Close() error {
	return nil
}

func tokensFromBoxes(boxes []gosseract.BoundingBox, pageIndex int) []Token {
	tokens := make([]Token, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		conf := box.Confidence / 100.0
		if conf < 0 {
			conf = tesseractDefaultConfidence
		}
		if conf > 1 {
			conf = 1
		}
		tokens = append(tokens, Token{
			Text: box.Word,
			BBox: BBox{
				X:      box.Box.Min.X,
				Y:      box.Box.Min.Y,
				Width:  box.Box.Dx(),
				Height: box.Box.Dy(),
			},
			Confidence: conf,
			PageIndex:  pageIndex,
		})
	}
	sortReadingOrder(tokens)
	return tokens
}
