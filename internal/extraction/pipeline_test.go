package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeRasterizer returns a fixed page set or a fixed error.
type fakeRasterizer struct {
	pages []*PageImage
	err   error
}

func (f *fakeRasterizer) Rasterize(pdfData []byte) ([]*PageImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// byteRasterizer wraps the document bytes into a single page so the
// locator can derive tokens from the document itself.
type byteRasterizer struct{}

func (byteRasterizer) Rasterize(pdfData []byte) ([]*PageImage, error) {
	return []*PageImage{{Index: 1, Width: 1000, Height: 1000, Data: pdfData}}, nil
}

// fakeLocator returns fixed tokens per page index, or a fixed error, or
// blocks until the page context is cancelled.
type fakeLocator struct {
	tokensByPage map[int][]Token
	err          error
	block        bool
}

func (f *fakeLocator) Locate(ctx context.Context, page *PageImage) ([]Token, error) {
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", ErrPageTimeout, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tokensByPage[page.Index], nil
}

func (f *fakeLocator) Close() error { return nil }

// textLocator tokenizes the page bytes as whitespace-separated words on
// a single top-of-page line.
type textLocator struct{}

func (textLocator) Locate(ctx context.Context, page *PageImage) ([]Token, error) {
	words := strings.Fields(string(page.Data))
	tokens := make([]Token, 0, len(words))
	x := 40
	for _, word := range words {
		tokens = append(tokens, Token{
			Text:       word,
			BBox:       BBox{X: x, Y: 60, Width: 12 * len(word), Height: 20},
			Confidence: 0.9,
			PageIndex:  page.Index,
		})
		x += 12*len(word) + 12
	}
	return tokens, nil
}

func (textLocator) Close() error { return nil }

func invoicePage() *PageImage {
	return &PageImage{Index: 1, Width: 1000, Height: 1000}
}

func invoiceTokens() []Token {
	return []Token{
		tk("Acme", 40, 60),
		tk("Supply", 110, 60),
		tk("Co.", 200, 60),
		tk("Date:", 40, 120),
		tk("03/04/2024", 120, 120),
		tk("Invoice", 40, 160),
		tk("#", 140, 160),
		tk("INV-2024-001", 170, 160),
		tk("Total", 600, 900),
		tk("$88.00", 700, 900),
	}
}

var _ = Describe("Pipeline", func() {
	Describe("ExtractPDF", func() {
		It("extracts all four fields from a well-labeled document", func() {
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{tokensByPage: map[int][]Token{1: invoiceTokens()}},
			)

			result, err := p.ExtractPDF(context.Background(), "file-1", "acme.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.FileID).To(Equal("file-1"))
			Expect(result.Filename).To(Equal("acme.pdf"))
			Expect(result.PageCount).To(Equal(1))
			Expect(result.Degraded).To(BeFalse())
			Expect(result.ExtractorVersion).To(Equal(Version))

			Expect(result.Vendor).To(HaveValue(Equal("Acme Supply Co.")))
			Expect(result.VendorConfidence).To(BeNumerically("~", 0.9, 1e-9))
			Expect(result.Date).To(HaveValue(Equal("2024-03-04")))
			Expect(result.Total).To(HaveValue(Equal(88.00)))
			Expect(result.InvoiceNumber).To(HaveValue(Equal("INV-2024-001")))
			Expect(BandFor(result.TotalConfidence)).To(Equal(BandHigh))
		})

		It("returns null fields with zero confidence when nothing matches", func() {
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{tokensByPage: map[int][]Token{}},
			)

			result, err := p.ExtractPDF(context.Background(), "file-2", "blank.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Vendor).To(BeNil())
			Expect(result.VendorConfidence).To(Equal(0.0))
			Expect(result.Date).To(BeNil())
			Expect(result.DateConfidence).To(Equal(0.0))
			Expect(result.Total).To(BeNil())
			Expect(result.TotalConfidence).To(Equal(0.0))
			Expect(result.InvoiceNumber).To(BeNil())
			Expect(result.InvoiceNumberConfidence).To(Equal(0.0))
			Expect(result.Degraded).To(BeFalse())
		})

		It("caps weak OCR reads even when the match is anchored", func() {
			tokens := invoiceTokens()
			for i := range tokens {
				tokens[i].Confidence = 0.3
			}
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{tokensByPage: map[int][]Token{1: tokens}},
			)

			result, err := p.ExtractPDF(context.Background(), "file-3", "blurry.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Vendor).To(HaveValue(Equal("Acme Supply Co.")))
			Expect(result.VendorConfidence).To(BeNumerically("~", 0.3, 1e-9))
			Expect(BandFor(result.VendorConfidence)).To(Equal(BandReview))
		})

		It("drops matches whose tokens carry zero OCR confidence", func() {
			tokens := invoiceTokens()
			for i := range tokens {
				tokens[i].Confidence = 0
			}
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{tokensByPage: map[int][]Token{1: tokens}},
			)

			result, err := p.ExtractPDF(context.Background(), "file-12", "noise.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			// A value paired with confidence 0.0 would read as not
			// detected, so no value may surface at that score.
			Expect(result.Vendor).To(BeNil())
			Expect(result.VendorConfidence).To(Equal(0.0))
			Expect(result.Total).To(BeNil())
			Expect(result.InvoiceNumber).To(BeNil())
			Expect(result.Date).To(BeNil())
			Expect(result.Degraded).To(BeFalse())
		})

		It("degrades instead of failing when no engine is bound", func() {
			p := NewPipeline(&fakeRasterizer{pages: []*PageImage{invoicePage()}}, nil)
			Expect(p.Degraded()).To(BeTrue())

			result, err := p.ExtractPDF(context.Background(), "file-4", "acme.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Degraded).To(BeTrue())
			Expect(result.Vendor).To(BeNil())
			Expect(result.PageCount).To(Equal(1))
		})

		It("degrades instead of failing when the engine goes away mid-run", func() {
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{err: fmt.Errorf("%w: tesseract exited", ErrEngineUnavailable)},
			)

			result, err := p.ExtractPDF(context.Background(), "file-5", "acme.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Degraded).To(BeTrue())
		})

		It("fails hard when the document exceeds the page limit", func() {
			p := NewPipeline(
				&fakeRasterizer{err: fmt.Errorf("%w: 25 pages", ErrPageLimitExceeded)},
				&fakeLocator{},
			)

			result, err := p.ExtractPDF(context.Background(), "file-6", "tome.pdf", []byte("%PDF"))
			Expect(err).To(MatchError(ErrPageLimitExceeded))
			Expect(result).To(BeNil())
		})

		It("fails hard when the document cannot be opened", func() {
			p := NewPipeline(
				&fakeRasterizer{err: fmt.Errorf("%w: not a pdf", ErrUnreadablePDF)},
				&fakeLocator{},
			)

			result, err := p.ExtractPDF(context.Background(), "file-7", "junk.pdf", []byte("MZ"))
			Expect(err).To(MatchError(ErrUnreadablePDF))
			Expect(result).To(BeNil())
		})

		It("treats a timed-out page as empty rather than failing the document", func() {
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{block: true},
				WithPageTimeout(20*time.Millisecond),
			)

			result, err := p.ExtractPDF(context.Background(), "file-8", "slow.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Degraded).To(BeFalse())
			Expect(result.Vendor).To(BeNil())
			Expect(result.Total).To(BeNil())
		})

		It("produces identical results across repeated runs", func() {
			p := NewPipeline(
				&fakeRasterizer{pages: []*PageImage{invoicePage()}},
				&fakeLocator{tokensByPage: map[int][]Token{1: invoiceTokens()}},
			)

			first, err := p.ExtractPDF(context.Background(), "file-9", "acme.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())
			second, err := p.ExtractPDF(context.Background(), "file-9", "acme.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
		})

		It("keeps concurrent documents isolated", func() {
			p := NewPipeline(byteRasterizer{}, textLocator{}, WithOCRConcurrency(4))

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()

					fileID := fmt.Sprintf("file-%d", i)
					doc := fmt.Sprintf("Orbit%d Inc", i)

					result, err := p.ExtractPDF(context.Background(), fileID, "doc.pdf", []byte(doc))
					Expect(err).NotTo(HaveOccurred())
					Expect(result.FileID).To(Equal(fileID))
					Expect(result.Vendor).To(HaveValue(Equal(doc)))
				}(i)
			}
			wg.Wait()
		})
	})

	Describe("ExtractImage", func() {
		It("treats a decoded photo as a single-page document", func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 800, 600)))).To(Succeed())

			p := NewPipeline(
				&fakeRasterizer{},
				&fakeLocator{tokensByPage: map[int][]Token{1: invoiceTokens()}},
			)

			result, err := p.ExtractImage(context.Background(), "file-10", "receipt.png", buf.Bytes(), "image/png")
			Expect(err).NotTo(HaveOccurred())

			Expect(result.PageCount).To(Equal(1))
			Expect(result.Vendor).To(HaveValue(Equal("Acme Supply Co.")))
		})

		It("rejects bytes that do not decode as an image", func() {
			p := NewPipeline(&fakeRasterizer{}, &fakeLocator{})

			result, err := p.ExtractImage(context.Background(), "file-11", "junk.png", []byte("not an image"), "image/png")
			Expect(err).To(MatchError(ErrUnreadablePDF))
			Expect(result).To(BeNil())
		})
	})

	Describe("score", func() {
		It("contains a recognizer panic to its own field", func() {
			p := NewPipeline(&fakeRasterizer{}, &fakeLocator{})

			scored := p.score(FieldVendor, stream(), func(*TokenStream) *FieldCandidate {
				panic("recognizer bug")
			})

			Expect(scored.Found).To(BeFalse())
			Expect(scored.Confidence).To(Equal(0.0))
			Expect(scored.Field).To(Equal(FieldVendor))
		})
	})
})

var _ = Describe("sortReadingOrder", func() {
	It("orders tokens top to bottom, then left to right within a line", func() {
		tokens := []Token{
			tk("right", 500, 100),
			tk("below", 40, 200),
			tk("left", 40, 100),
		}
		sortReadingOrder(tokens)

		Expect(tokens[0].Text).To(Equal("left"))
		Expect(tokens[1].Text).To(Equal("right"))
		Expect(tokens[2].Text).To(Equal("below"))
	})
})

var _ = Describe("errors", func() {
	It("keeps the structural sentinels distinct", func() {
		Expect(errors.Is(ErrPageLimitExceeded, ErrUnreadablePDF)).To(BeFalse())
		Expect(errors.Is(ErrPageTimeout, ErrEngineUnavailable)).To(BeFalse())
	})
})
