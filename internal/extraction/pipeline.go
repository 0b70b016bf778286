package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the extraction contract handed to the review/persistence
// layer. Absent fields are null with confidence exactly 0.0 so callers
// can tell "not found" from "found but low quality". Degraded means the
// OCR engine was unavailable and nothing was attempted.
type Result struct {
	FileID                  string   `json:"file_id"`
	Filename                string   `json:"filename"`
	Vendor                  *string  `json:"vendor"`
	VendorConfidence        float64  `json:"vendor_confidence"`
	Date                    *string  `json:"date"`
	DateConfidence          float64  `json:"date_confidence"`
	Total                   *float64 `json:"total"`
	TotalConfidence         float64  `json:"total_confidence"`
	InvoiceNumber           *string  `json:"invoice_number"`
	InvoiceNumberConfidence float64  `json:"invoice_number_confidence"`
	PageCount               int      `json:"page_count"`
	Degraded                bool     `json:"degraded"`
	ExtractorVersion        string   `json:"extractor_version"`
}

// ScoredField is one field's final value and blended confidence.
type ScoredField struct {
	Field      FieldName
	Value      string
	Amount     float64
	Found      bool
	Confidence float64
}

// Pipeline runs the full extraction: rasterize, locate text, recognize
// fields, score, assemble. Runs share no state; a single Pipeline is
// safe for concurrent use across documents.
type Pipeline struct {
	rasterizer  Rasterizer
	locator     Locator
	concurrency int
	pageTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOCRConcurrency bounds how many pages are OCR'd at once.
func WithOCRConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPageTimeout bounds the processing time of a single page. A page
// that exceeds it contributes no tokens instead of aborting the run.
func WithPageTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.pageTimeout = d
		}
	}
}

// NewPipeline creates a pipeline. A nil locator is allowed and puts
// every run into degraded mode, keeping uploads alive when the engine
// cannot be initialized.
func NewPipeline(rasterizer Rasterizer, locator Locator, opts ...Option) *Pipeline {
	p := &Pipeline{
		rasterizer:  rasterizer,
		locator:     locator,
		concurrency: 2,
		pageTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Degraded reports whether the pipeline has no OCR engine bound, in
// which case every run returns an empty degraded result.
func (p *Pipeline) Degraded() bool {
	return p.locator == nil
}

// ExtractPDF runs the pipeline over a PDF document. It returns a hard
// error only for document-level structural failures (ErrUnreadablePDF,
// ErrPageLimitExceeded); every other failure mode degrades to a lower
// confidence or empty result.
func (p *Pipeline) ExtractPDF(ctx context.Context, fileID, filename string, pdfData []byte) (*Result, error) {
	pages, err := p.rasterizer.Rasterize(pdfData)
	if err != nil {
		return nil, fmt.Errorf("rasterizing %s: %w", filename, err)
	}
	return p.extract(ctx, fileID, filename, pages), nil
}

// ExtractImage runs the pipeline over a photographed invoice as a
// single-page document.
func (p *Pipeline) ExtractImage(ctx context.Context, fileID, filename string, data []byte, contentType string) (*Result, error) {
	page, err := DecodeImagePage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	return p.extract(ctx, fileID, filename, []*PageImage{page}), nil
}

func (p *Pipeline) extract(ctx context.Context, fileID, filename string, pages []*PageImage) *Result {
	if p.locator == nil {
		slog.Warn("No OCR engine bound, returning degraded result", "file_id", fileID)
		return emptyResult(fileID, filename, len(pages), true)
	}

	stream, err := p.locate(ctx, pages)
	if err != nil {
		// Engine failure mid-run degrades the whole document rather
		// than failing the upload.
		slog.Warn("OCR engine unavailable, returning degraded result", "file_id", fileID, "error", err)
		return emptyResult(fileID, filename, len(pages), true)
	}

	fields := map[FieldName]ScoredField{
		FieldVendor:        p.score(FieldVendor, stream, extractVendor),
		FieldDate:          p.score(FieldDate, stream, extractDate),
		FieldTotal:         p.score(FieldTotal, stream, extractTotal),
		FieldInvoiceNumber: p.score(FieldInvoiceNumber, stream, extractInvoiceNumber),
	}

	return assemble(fileID, filename, len(pages), fields)
}

// locate OCRs every page with bounded concurrency and joins the token
// streams back in page order. A timed-out or failed page contributes an
// empty token set; only engine unavailability aborts.
func (p *Pipeline) locate(ctx context.Context, pages []*PageImage) (*TokenStream, error) {
	perPage := make([][]Token, len(pages))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)

	for i, page := range pages {
		eg.Go(func() error {
			pageCtx, cancel := context.WithTimeout(gctx, p.pageTimeout)
			defer cancel()

			tokens, err := p.locator.Locate(pageCtx, page)
			if err != nil {
				if errors.Is(err, ErrEngineUnavailable) {
					return err
				}
				// Timeouts and per-page engine faults leave a gap, not
				// a failed document.
				slog.Warn("Page OCR failed, continuing without its tokens", "page", page.Index, "error", err)
				return nil
			}
			perPage[i] = tokens
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	stream := &TokenStream{Pages: make([]PageDim, len(pages))}
	for i, page := range pages {
		stream.Pages[i] = PageDim{Width: page.Width, Height: page.Height}
		stream.Tokens = append(stream.Tokens, perPage[i]...)
	}
	return stream, nil
}

// score runs one recognizer and blends its certainty with the OCR
// confidence of its source tokens. Recognizer faults are contained per
// field: a panic becomes "no candidate" and never aborts the other
// fields.
func (p *Pipeline) score(field FieldName, stream *TokenStream, recognize func(*TokenStream) *FieldCandidate) (scored ScoredField) {
	scored = ScoredField{Field: field}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Field recognizer fault", "field", field, "panic", r)
			scored = ScoredField{Field: field}
		}
	}()

	candidate := recognize(stream)
	if candidate == nil {
		return scored
	}

	confidence := blendConfidence(candidate)
	if confidence == 0 {
		// Confidence 0.0 means "not detected"; a value blended down to
		// zero is dropped rather than reported under that score.
		return scored
	}

	scored.Value = candidate.Value
	scored.Amount = candidate.Amount
	scored.Found = true
	scored.Confidence = confidence
	return scored
}

// assemble packages the four scored fields into the response contract.
func assemble(fileID, filename string, pageCount int, fields map[FieldName]ScoredField) *Result {
	result := emptyResult(fileID, filename, pageCount, false)

	if f := fields[FieldVendor]; f.Found {
		result.Vendor = &f.Value
		result.VendorConfidence = f.Confidence
	}
	if f := fields[FieldDate]; f.Found {
		result.Date = &f.Value
		result.DateConfidence = f.Confidence
	}
	if f := fields[FieldTotal]; f.Found {
		amount := f.Amount
		result.Total = &amount
		result.TotalConfidence = f.Confidence
	}
	if f := fields[FieldInvoiceNumber]; f.Found {
		result.InvoiceNumber = &f.Value
		result.InvoiceNumberConfidence = f.Confidence
	}
	return result
}

func emptyResult(fileID, filename string, pageCount int, degraded bool) *Result {
	return &Result{
		FileID:           fileID,
		Filename:         filename,
		PageCount:        pageCount,
		Degraded:         degraded,
		ExtractorVersion: Version,
	}
}
