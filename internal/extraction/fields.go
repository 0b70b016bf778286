package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FieldName identifies one of the four extracted invoice fields.
type FieldName string

const (
	FieldVendor        FieldName = "vendor"
	FieldDate          FieldName = "date"
	FieldTotal         FieldName = "total"
	FieldInvoiceNumber FieldName = "invoice_number"
)

// Recognizer certainty is independent of OCR quality: a label-anchored
// match is certain, an unanchored heuristic fallback is not.
const (
	anchoredCertainty = 1.0
	fallbackCertainty = 0.5
)

// FieldCandidate is one recognizer's proposal for one field. Value holds
// the normalized form (ISO date for dates, plain decimal for totals).
// Amount is set only for FieldTotal.
type FieldCandidate struct {
	Field          FieldName
	RawValue       string
	Value          string
	Amount         float64
	SourceTokens   []Token
	LocalCertainty float64
}

var (
	companySuffixRe  = regexp.MustCompile(`(?i)^(inc|llc|ltd|co|corp|gmbh)[.,]*$`)
	currencyRe       = regexp.MustCompile(`^(?:\$|USD)?\d{1,3}(?:,?\d{3})*\.\d{2}$`)
	invoiceValueRe   = regexp.MustCompile(`^#?[A-Za-z0-9][A-Za-z0-9/_.-]*$`)
	invoiceGenericRe = regexp.MustCompile(`^[A-Za-z]{2,}[-_][A-Za-z0-9]+(?:[-_][A-Za-z0-9]+)*$`)
	hasDigitRe       = regexp.MustCompile(`\d`)
)

// boilerplateWords are common invoice chrome excluded from vendor runs.
var boilerplateWords = map[string]bool{
	"invoice": true, "bill": true, "to": true, "from": true,
	"date": true, "page": true, "total": true, "amount": true,
	"number": true, "statement": true, "receipt": true,
}

// dateLayouts is the ordered list of accepted date formats. Ambiguous
// numeric dates (e.g. 01/02/2024) resolve under a fixed US locale:
// MM/DD/YYYY is tried first, so month-first always wins when both
// readings are valid. The DD/MM layouts only catch dates whose day
// exceeds 12.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02-01-2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// extractVendor proposes the vendor name from the first page: the line
// containing a company suffix (Inc/LLC/Ltd/Co/Corp) in the top half is
// strongly preferred; otherwise the longest capitalized run in the top
// quarter wins as a heuristic fallback.
func extractVendor(stream *TokenStream) *FieldCandidate {
	if len(stream.Pages) == 0 {
		return nil
	}
	pageHeight := stream.Pages[0].Height
	if pageHeight <= 0 {
		return nil
	}

	lines := groupLines(pageTokens(stream.Tokens, 1))

	var suffixRun []Token
	var bestRun []Token
	for _, line := range lines {
		for _, run := range capitalizedRuns(line) {
			if containsCompanySuffix(run) && run[0].BBox.Y < pageHeight/2 {
				if suffixRun == nil {
					suffixRun = run
				}
				continue
			}
			if run[0].BBox.Y < pageHeight/4 && len(run) > len(bestRun) {
				bestRun = run
			}
		}
	}

	run, certainty := bestRun, fallbackCertainty
	if suffixRun != nil {
		run, certainty = suffixRun, anchoredCertainty
	}
	if len(run) == 0 {
		return nil
	}

	name := joinTokens(run)
	if len(name) < 2 {
		return nil
	}
	return &FieldCandidate{
		Field:          FieldVendor,
		RawValue:       name,
		Value:          name,
		SourceTokens:   run,
		LocalCertainty: certainty,
	}
}

// extractDate proposes the invoice date: the first token window parsing
// under the ordered layout list wins. A "date" label within the three
// preceding tokens anchors the match.
func extractDate(stream *TokenStream) *FieldCandidate {
	tokens := stream.Tokens
	for i := range tokens {
		for width := 1; width <= 3 && i+width <= len(tokens); width++ {
			window := tokens[i : i+width]
			raw := joinTokens(window)
			parsed, ok := parseDate(raw)
			if !ok {
				continue
			}

			certainty := fallbackCertainty
			for back := i - 3; back < i; back++ {
				if back >= 0 && normalizeWord(tokens[back].Text) == "date" {
					certainty = anchoredCertainty
					break
				}
			}

			return &FieldCandidate{
				Field:          FieldDate,
				RawValue:       raw,
				Value:          parsed.Format("2006-01-02"),
				SourceTokens:   window,
				LocalCertainty: certainty,
			}
		}
	}
	return nil
}

// extractTotal proposes the grand total: among currency tokens within
// four tokens of a total-family label, the one lowest on the document
// wins (invoices place the grand total last). Without any labeled match
// it falls back to the bottom-most currency token.
func extractTotal(stream *TokenStream) *FieldCandidate {
	tokens := stream.Tokens

	var labeled, unlabeled []int
	for i, tok := range tokens {
		if !currencyRe.MatchString(tok.Text) {
			continue
		}
		if anchor := totalLabelBefore(tokens, i, 4); anchor {
			labeled = append(labeled, i)
		} else {
			unlabeled = append(unlabeled, i)
		}
	}

	candidates, certainty := labeled, anchoredCertainty
	if len(candidates) == 0 {
		candidates, certainty = unlabeled, fallbackCertainty
	}

	best := -1
	for _, idx := range candidates {
		amount, err := parseAmount(tokens[idx].Text)
		if err != nil || amount <= 0 {
			continue
		}
		if best == -1 || lowerOnDocument(tokens[idx], tokens[best]) {
			best = idx
		}
	}
	if best == -1 {
		return nil
	}

	amount, _ := parseAmount(tokens[best].Text)
	return &FieldCandidate{
		Field:          FieldTotal,
		RawValue:       tokens[best].Text,
		Value:          strconv.FormatFloat(amount, 'f', 2, 64),
		Amount:         amount,
		SourceTokens:   []Token{tokens[best]},
		LocalCertainty: certainty,
	}
}

// extractInvoiceNumber proposes the invoice number: an alphanumeric
// token following an "invoice #"/"invoice no"/"inv#" label, falling back
// to the first token shaped like a reference code (e.g. INV-2024-001).
func extractInvoiceNumber(stream *TokenStream) *FieldCandidate {
	tokens := stream.Tokens

	for i := range tokens {
		width := invoiceLabelAt(tokens, i)
		if width == 0 {
			continue
		}
		for j := i + width; j < len(tokens) && j <= i+width+2; j++ {
			value := strings.TrimPrefix(tokens[j].Text, "#")
			if len(value) >= 3 && invoiceValueRe.MatchString(tokens[j].Text) && hasDigitRe.MatchString(value) {
				return &FieldCandidate{
					Field:          FieldInvoiceNumber,
					RawValue:       tokens[j].Text,
					Value:          value,
					SourceTokens:   []Token{tokens[j]},
					LocalCertainty: anchoredCertainty,
				}
			}
		}
	}

	for _, tok := range tokens {
		if invoiceGenericRe.MatchString(tok.Text) && hasDigitRe.MatchString(tok.Text) {
			return &FieldCandidate{
				Field:          FieldInvoiceNumber,
				RawValue:       tok.Text,
				Value:          tok.Text,
				SourceTokens:   []Token{tok},
				LocalCertainty: fallbackCertainty,
			}
		}
	}
	return nil
}

// pageTokens filters the stream down to one page, preserving order.
func pageTokens(tokens []Token, page int) []Token {
	var out []Token
	for _, tok := range tokens {
		if tok.PageIndex == page {
			out = append(out, tok)
		}
	}
	return out
}

// groupLines buckets consecutive reading-order tokens into visual lines.
func groupLines(tokens []Token) [][]Token {
	var lines [][]Token
	for _, tok := range tokens {
		if n := len(lines); n > 0 {
			last := lines[n-1]
			if sameLine(last[len(last)-1].BBox, tok.BBox) {
				lines[n-1] = append(lines[n-1], tok)
				continue
			}
		}
		lines = append(lines, []Token{tok})
	}
	return lines
}

// capitalizedRuns returns maximal sequences of capitalized,
// non-boilerplate tokens within one line.
func capitalizedRuns(line []Token) [][]Token {
	var runs [][]Token
	var current []Token
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}
	for _, tok := range line {
		if isCapitalizedWord(tok.Text) && !boilerplateWords[normalizeWord(tok.Text)] {
			current = append(current, tok)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

func isCapitalizedWord(text string) bool {
	for _, r := range text {
		if r >= 'A' && r <= 'Z' {
			return true
		}
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	return false
}

func containsCompanySuffix(run []Token) bool {
	for _, tok := range run {
		if companySuffixRe.MatchString(tok.Text) {
			return true
		}
	}
	return false
}

// normalizeWord lowercases and strips label punctuation for comparisons.
func normalizeWord(text string) string {
	return strings.Trim(strings.ToLower(text), ":#.,")
}

// normalizeLabel is like normalizeWord but keeps '#', which is
// significant in labels such as "Invoice#:".
func normalizeLabel(text string) string {
	return strings.Trim(strings.ToLower(text), ":.,")
}

func joinTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.Text
	}
	return strings.Join(parts, " ")
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if t.Year() < 1990 || t.Year() > 2100 {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

func parseAmount(text string) (float64, error) {
	cleaned := strings.TrimPrefix(text, "$")
	cleaned = strings.TrimPrefix(cleaned, "USD")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return strconv.ParseFloat(cleaned, 64)
}

// totalLabelBefore reports whether a total-family label ("total",
// "amount due", "balance due") ends within n tokens before index i.
func totalLabelBefore(tokens []Token, i, n int) bool {
	for j := i - 1; j >= 0 && j >= i-n; j-- {
		word := normalizeWord(tokens[j].Text)
		if word == "total" {
			return true
		}
		if word == "due" && j > 0 {
			prev := normalizeWord(tokens[j-1].Text)
			if prev == "amount" || prev == "balance" {
				return true
			}
		}
	}
	return false
}

// invoiceLabelAt returns the token width of an invoice-number label
// starting at index i, or 0 if there is none.
func invoiceLabelAt(tokens []Token, i int) int {
	word := normalizeLabel(tokens[i].Text)
	switch word {
	case "invoice#", "inv#", "inv":
		return 1
	}
	if word == "invoice" && i+1 < len(tokens) {
		switch normalizeLabel(tokens[i+1].Text) {
		case "#", "no", "num", "number":
			return 2
		}
	}
	return 0
}

func lowerOnDocument(a, b Token) bool {
	if a.PageIndex != b.PageIndex {
		return a.PageIndex > b.PageIndex
	}
	return a.BBox.Y > b.BBox.Y
}
