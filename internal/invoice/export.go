package invoice

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{"Vendor", "Date", "Invoice#", "Total", "Status"}

// ExportCSV renders all approved invoices as CSV, newest first.
func (s *Service) ExportCSV() ([]byte, error) {
	invoices, err := s.db.ListInvoices(StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("listing approved invoices: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	for _, inv := range invoices {
		if err := w.Write(exportRow(inv)); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportXLSX renders all approved invoices as a spreadsheet workbook.
func (s *Service) ExportXLSX() ([]byte, error) {
	invoices, err := s.db.ListInvoices(StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("listing approved invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}

	for col, h := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, inv := range invoices {
		values := []any{inv.Vendor, inv.Date, inv.InvoiceNumber, inv.TotalDollars(), string(inv.Status)}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(inv *Invoice) []string {
	return []string{
		inv.Vendor,
		inv.Date,
		inv.InvoiceNumber,
		fmt.Sprintf("%.2f", inv.TotalDollars()),
		string(inv.Status),
	}
}
