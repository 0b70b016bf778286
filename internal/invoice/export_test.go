package invoice

import (
	"bytes"
	"encoding/csv"
	"time"

	"github.com/xuri/excelize/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("exports", func() {
	var svc *Service

	BeforeEach(func() {
		var err error
		svc, _, _, _, _ = newTestService()

		_, err = svc.SaveInvoice(CreateInvoiceRequest{
			FileID:        "f1",
			Vendor:        "Acme Supply Co.",
			Date:          "2024-03-04",
			Total:         88.00,
			InvoiceNumber: "INV-2024-001",
			Status:        StatusApproved,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.SaveInvoice(CreateInvoiceRequest{
			FileID: "f2",
			Vendor: "Pending Partner",
			Total:  12.50,
			Status: StatusDraft,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("ExportCSV", func() {
		It("renders only approved invoices under a header row", func() {
			data, err := svc.ExportCSV()
			Expect(err).NotTo(HaveOccurred())

			rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
			Expect(err).NotTo(HaveOccurred())

			Expect(rows).To(HaveLen(2))
			Expect(rows[0]).To(Equal([]string{"Vendor", "Date", "Invoice#", "Total", "Status"}))
			Expect(rows[1]).To(Equal([]string{"Acme Supply Co.", "2024-03-04", "INV-2024-001", "88.00", "approved"}))
		})

		It("renders just the header when nothing is approved", func() {
			empty, _, _, _, _ := newTestService()

			data, err := empty.ExportCSV()
			Expect(err).NotTo(HaveOccurred())

			rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})
	})

	Describe("ExportXLSX", func() {
		It("renders approved invoices into the Invoices sheet", func() {
			data, err := svc.ExportXLSX()
			Expect(err).NotTo(HaveOccurred())

			f, err := excelize.OpenReader(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			Expect(f.GetSheetList()).To(Equal([]string{"Invoices"}))

			rows, err := f.GetRows("Invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0]).To(Equal([]string{"Vendor", "Date", "Invoice#", "Total", "Status"}))
			Expect(rows[1][0]).To(Equal("Acme Supply Co."))
			Expect(rows[1][4]).To(Equal("approved"))
		})
	})
})
