package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoicebox/invoicebox/internal/extraction"
)

// Extractor runs the field-extraction pipeline over an upload.
type Extractor interface {
	// ExtractPDF extracts fields from a PDF document
	ExtractPDF(ctx context.Context, fileID, filename string, data []byte) (*extraction.Result, error)
	// ExtractImage extracts fields from a photographed invoice
	ExtractImage(ctx context.Context, fileID, filename string, data []byte, contentType string) (*extraction.Result, error)
	// Degraded reports whether the OCR engine is unavailable
	Degraded() bool
}

// IDGenerator generates unique IDs for records and uploads
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates UUID identifiers
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// CreateInvoiceRequest carries reviewed invoice data from the client.
// Total is in dollars; it is stored as integer cents.
type CreateInvoiceRequest struct {
	FileID        string  `json:"file_id"`
	Filename      string  `json:"filename"`
	Vendor        string  `json:"vendor"`
	Date          string  `json:"date"`
	Total         float64 `json:"total"`
	InvoiceNumber string  `json:"invoice_number"`
	Status        Status  `json:"status"`
}

// Health reports the state of the service's collaborators.
type Health struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
	Engine   string `json:"ocr_engine"`
}

// Service handles uploads, invoice review persistence, and vendors
type Service struct {
	db          DB
	storage     Storage
	extractor   Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
	docTimeout  time.Duration
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, extractor Extractor, docTimeout time.Duration) *Service {
	return NewServiceWithDeps(db, storage, extractor, docTimeout, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor Extractor, docTimeout time.Duration, idGen IDGenerator, timeSrc TimeSource) *Service {
	if docTimeout <= 0 {
		docTimeout = 10 * time.Minute
	}
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
		docTimeout:  docTimeout,
	}
}

// ProcessUpload stores the uploaded document and runs extraction over
// it. Structural pipeline failures remove the stored file and surface
// as errors; everything else comes back as a (possibly degraded) result
// for the reviewer.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType string) (*extraction.Result, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	isPDF := contentType == "application/pdf"
	if !isPDF && !extraction.IsImageContentType(contentType) {
		return nil, fmt.Errorf("unsupported content type %q: only PDF and image invoices are accepted", contentType)
	}

	fileID := s.idGenerator.Generate()

	// Files are stored under the bare file ID; the content type is
	// sniffed again when the file is served.
	if _, err := s.storage.Save(fileID, data); err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.docTimeout)
	defer cancel()

	var result *extraction.Result
	var err error
	if isPDF {
		result, err = s.extractor.ExtractPDF(ctx, fileID, filename, data)
	} else {
		result, err = s.extractor.ExtractImage(ctx, fileID, filename, data, contentType)
	}
	if err != nil {
		slog.Error("Extraction failed",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(fileID); delErr != nil {
			slog.Warn("Failed to remove file after extraction failure", "file_id", fileID, "error", delErr)
		}
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}

	return result, nil
}

// SaveInvoice persists a reviewed invoice, creating its vendor on
// demand.
func (s *Service) SaveInvoice(req CreateInvoiceRequest) (*Invoice, error) {
	if err := validateInvoiceRequest(req); err != nil {
		return nil, err
	}

	vendor, err := s.findOrCreateVendor(req.Vendor)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	inv := &Invoice{
		ID:            s.idGenerator.Generate(),
		FileID:        req.FileID,
		Filename:      defaultFilename(req.Filename),
		VendorID:      vendor.ID,
		Vendor:        vendor.Name,
		Date:          req.Date,
		TotalCents:    int(req.Total*100 + 0.5),
		InvoiceNumber: req.InvoiceNumber,
		Status:        defaultStatus(req.Status),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.SaveInvoice(inv); err != nil {
		return nil, fmt.Errorf("saving invoice: %w", err)
	}
	return inv, nil
}

// UpdateInvoice applies reviewer edits to an existing invoice.
func (s *Service) UpdateInvoice(id string, req CreateInvoiceRequest) (*Invoice, error) {
	if err := validateInvoiceRequest(req); err != nil {
		return nil, err
	}

	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice for update: %w", err)
	}

	vendor, err := s.findOrCreateVendor(req.Vendor)
	if err != nil {
		return nil, err
	}

	inv.VendorID = vendor.ID
	inv.Vendor = vendor.Name
	inv.Date = req.Date
	inv.TotalCents = int(req.Total*100 + 0.5)
	inv.InvoiceNumber = req.InvoiceNumber
	if req.Status != "" {
		inv.Status = req.Status
	}
	inv.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveInvoice(inv); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}
	return inv, nil
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns invoices, optionally filtered by status
func (s *Service) ListInvoices(status Status) ([]*Invoice, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("invalid status filter %q", status)
	}
	invoices, err := s.db.ListInvoices(status)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice and its stored file
func (s *Service) DeleteInvoice(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if err := s.storage.Delete(inv.FileID); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "file_id", inv.FileID, "error", err)
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice: %w", err)
	}
	return nil
}

// GetInvoiceFile retrieves the stored document for an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	data, err := s.storage.Get(inv.FileID)
	if err != nil {
		return nil, fmt.Errorf("getting invoice file: %w", err)
	}
	return data, nil
}

// ListVendors returns all vendors
func (s *Service) ListVendors() ([]*Vendor, error) {
	vendors, err := s.db.ListVendors()
	if err != nil {
		return nil, fmt.Errorf("listing vendors: %w", err)
	}
	return vendors, nil
}

// GetVendor retrieves a vendor by ID
func (s *Service) GetVendor(id string) (*Vendor, error) {
	vendor, err := s.db.GetVendor(id)
	if err != nil {
		return nil, fmt.Errorf("getting vendor: %w", err)
	}
	return vendor, nil
}

// CreateVendor creates a vendor, rejecting duplicates by name
func (s *Service) CreateVendor(name string) (*Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("vendor name is required")
	}

	if _, err := s.db.GetVendorByName(name); err == nil {
		return nil, fmt.Errorf("vendor %q already exists", name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking vendor: %w", err)
	}

	vendor := &Vendor{
		ID:        s.idGenerator.Generate(),
		Name:      name,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveVendor(vendor); err != nil {
		return nil, fmt.Errorf("saving vendor: %w", err)
	}
	return vendor, nil
}

// HealthCheck reports database and OCR engine state.
func (s *Service) HealthCheck() Health {
	h := Health{
		Status:   "healthy",
		Service:  "invoicebox",
		Database: "connected",
		Engine:   "available",
	}
	if err := s.db.Ping(); err != nil {
		h.Status = "unhealthy"
		h.Database = "disconnected"
	}
	if s.extractor.Degraded() {
		h.Engine = "degraded"
	}
	return h
}

func (s *Service) findOrCreateVendor(name string) (*Vendor, error) {
	name = strings.TrimSpace(name)
	vendor, err := s.db.GetVendorByName(name)
	if err == nil {
		return vendor, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("looking up vendor: %w", err)
	}

	vendor = &Vendor{
		ID:        s.idGenerator.Generate(),
		Name:      name,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveVendor(vendor); err != nil {
		return nil, fmt.Errorf("creating vendor: %w", err)
	}
	return vendor, nil
}

func validateInvoiceRequest(req CreateInvoiceRequest) error {
	if strings.TrimSpace(req.Vendor) == "" {
		return fmt.Errorf("vendor is required")
	}
	if req.FileID == "" {
		return fmt.Errorf("file_id is required")
	}
	if req.Total <= 0 {
		return fmt.Errorf("total must be greater than zero")
	}
	if req.Status != "" && !req.Status.Valid() {
		return fmt.Errorf("invalid status %q", req.Status)
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return fmt.Errorf("date must be in YYYY-MM-DD format")
		}
	}
	return nil
}

func defaultFilename(name string) string {
	if name == "" {
		return "unknown.pdf"
	}
	return name
}

func defaultStatus(status Status) Status {
	if status == "" {
		return StatusDraft
	}
	return status
}
