package invoice

import "time"

// Status is the review lifecycle of an invoice. Extraction results are
// saved as drafts; a human approves or rejects them.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Invoice is an approved-or-pending invoice record. The vendor name is
// denormalized alongside the vendor ID so listings need no join.
type Invoice struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id"`
	Filename      string    `json:"filename"`
	VendorID      string    `json:"vendor_id"`
	Vendor        string    `json:"vendor"`
	Date          string    `json:"date,omitempty"` // ISO date, empty when unknown
	TotalCents    int       `json:"total_cents"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TotalDollars converts the stored cents back to a decimal amount.
func (i *Invoice) TotalDollars() float64 {
	return float64(i.TotalCents) / 100
}

// Vendor is an address-book entry, created on demand when an invoice
// names a vendor that does not exist yet.
type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
