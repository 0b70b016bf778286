package extraction

import "sort"

// BBox is a token's bounding box in page-pixel coordinates.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Token is one OCR-recognized text unit with its position and the
// engine-reported confidence in [0,1].
type Token struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	PageIndex  int     `json:"page_index"` // 1-based
}

// PageDim holds the pixel dimensions of one rasterized page.
type PageDim struct {
	Width  int
	Height int
}

// TokenStream is the ordered token sequence for a whole document:
// reading order within a page, pages in document order. It is read-only
// once produced.
type TokenStream struct {
	Tokens []Token
	Pages  []PageDim // indexed by page (0-based slice, page 1 first)
}

// PageImage is one rasterized page. The pixel buffer is PNG-encoded so it
// can be handed to any engine adapter without re-encoding. Pages are
// discarded once OCR for them completes.
type PageImage struct {
	Index  int // 1-based
	Width  int
	Height int
	Data   []byte // PNG
}

// sortReadingOrder orders tokens top-to-bottom, left-to-right. Words on
// the same visual line rarely share an exact Y, so tokens are bucketed
// into lines by vertical overlap before sorting each line by X.
func sortReadingOrder(tokens []Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]
		if a.PageIndex != b.PageIndex {
			return a.PageIndex < b.PageIndex
		}
		if sameLine(a.BBox, b.BBox) {
			return a.BBox.X < b.BBox.X
		}
		return a.BBox.Y < b.BBox.Y
	})
}

// sameLine reports whether two boxes overlap vertically by at least half
// the smaller box's height.
func sameLine(a, b BBox) bool {
	top := max(a.Y, b.Y)
	bottom := min(a.Y+a.Height, b.Y+b.Height)
	overlap := bottom - top
	if overlap <= 0 {
		return false
	}
	smaller := min(a.Height, b.Height)
	if smaller <= 0 {
		return false
	}
	return overlap*2 >= smaller
}
