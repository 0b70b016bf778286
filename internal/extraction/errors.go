package extraction

import "errors"

var (
	// ErrUnreadablePDF means the byte stream is not a valid PDF, or is
	// encrypted without a password. Fatal for the run; no partial result.
	ErrUnreadablePDF = errors.New("unreadable pdf")

	// ErrPageLimitExceeded means the document has more pages than the
	// configured maximum. Fatal for the run.
	ErrPageLimitExceeded = errors.New("page limit exceeded")

	// ErrEngineUnavailable means the OCR engine could not be initialized
	// or invoked at all. The run degrades to an empty result rather than
	// failing the upload.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")

	// ErrPageTimeout means a single page exceeded its processing budget.
	// That page contributes no tokens; the run continues.
	ErrPageTimeout = errors.New("ocr page timeout")
)
