package extraction

// Version marks the scoring contract carried in every result. Clients
// key the band thresholds off this value; bump it whenever the
// thresholds or the blend change.
const Version = "1"

// Band thresholds consumed by the reviewer UI. Part of the external
// contract.
const (
	// HighConfidenceThreshold marks fields trusted without review.
	HighConfidenceThreshold = 0.8
)

// Band classifies a final confidence score for the reviewer.
type Band string

const (
	BandHigh        Band = "high"
	BandReview      Band = "review"
	BandNotDetected Band = "not_detected"
)

// BandFor returns the band a final confidence falls into.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= HighConfidenceThreshold:
		return BandHigh
	case confidence > 0:
		return BandReview
	default:
		return BandNotDetected
	}
}

// blendConfidence combines the mean OCR confidence of the candidate's
// source tokens with the recognizer's own certainty. The minimum is
// used, not the average: a weak OCR read or a weak heuristic match must
// each be able to pull the field into the review band on its own.
func blendConfidence(candidate *FieldCandidate) float64 {
	ocr := meanTokenConfidence(candidate.SourceTokens)
	score := min(ocr, candidate.LocalCertainty)
	return clamp01(score)
}

func meanTokenConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		sum += tok.Confidence
	}
	return sum / float64(len(tokens))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
