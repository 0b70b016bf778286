package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/invoicebox/invoicebox/internal/extraction"
)

func newTestServer(auth BasicAuth) (*Server, *mockDB, *mockStorage) {
	svc, db, store, _, _ := newTestService()
	return NewServer(svc, auth), db, store
}

// uploadRequest builds a multipart upload with an explicit part content
// type, the way browsers send files.
func uploadRequest(filename, contentType string, data []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(w.Close()).To(Succeed())

	req := httptest.NewRequest("POST", "/api/uploads", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doJSON(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

var _ = Describe("Server", func() {
	var server *Server
	var store *mockStorage

	BeforeEach(func() {
		server, _, store = newTestServer(BasicAuth{})
	})

	Describe("health", func() {
		It("responds without authentication", func() {
			rec := doJSON(server, "GET", "/api/health", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var health Health
			Expect(json.Unmarshal(rec.Body.Bytes(), &health)).To(Succeed())
			Expect(health.Status).To(Equal("healthy"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			server, _, _ = newTestServer(BasicAuth{Username: "reviewer", Password: "secret"})
		})

		It("rejects requests without credentials", func() {
			rec := doJSON(server, "GET", "/api/invoices", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts matching credentials", func() {
			req := httptest.NewRequest("GET", "/api/invoices", nil)
			req.SetBasicAuth("reviewer", "secret")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("leaves health unauthenticated", func() {
			rec := doJSON(server, "GET", "/api/health", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("uploads", func() {
		It("accepts a PDF and returns the extraction result", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, uploadRequest("acme.pdf", "application/pdf", []byte("%PDF-1.7")))

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var result extraction.Result
			Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
			Expect(result.FileID).NotTo(BeEmpty())
			Expect(result.Filename).To(Equal("acme.pdf"))
			Expect(store.files).To(HaveKey(result.FileID))
		})

		It("rejects unsupported content types", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, uploadRequest("notes.txt", "text/plain", []byte("hello")))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("unsupported content type"))
		})

		It("rejects requests without a file", func() {
			var body bytes.Buffer
			w := multipart.NewWriter(&body)
			Expect(w.Close()).To(Succeed())

			req := httptest.NewRequest("POST", "/api/uploads", &body)
			req.Header.Set("Content-Type", w.FormDataContentType())
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("invoices", func() {
		createDraft := func() *Invoice {
			rec := doJSON(server, "POST", "/api/invoices", CreateInvoiceRequest{
				FileID: "f1",
				Vendor: "Acme Supply Co.",
				Date:   "2024-03-04",
				Total:  88.00,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var inv Invoice
			Expect(json.Unmarshal(rec.Body.Bytes(), &inv)).To(Succeed())
			return &inv
		}

		It("creates, lists, and fetches invoices", func() {
			inv := createDraft()
			Expect(inv.Status).To(Equal(StatusDraft))

			rec := doJSON(server, "GET", "/api/invoices", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var listed []Invoice
			Expect(json.Unmarshal(rec.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(HaveLen(1))

			rec = doJSON(server, "GET", "/api/invoices/"+inv.ID, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("rejects invalid payloads", func() {
			rec := doJSON(server, "POST", "/api/invoices", CreateInvoiceRequest{FileID: "f1", Total: 1})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("vendor is required"))
		})

		It("returns 404 for a missing invoice", func() {
			Expect(doJSON(server, "GET", "/api/invoices/nope", nil).Code).To(Equal(http.StatusNotFound))
			Expect(doJSON(server, "DELETE", "/api/invoices/nope", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("updates an invoice", func() {
			inv := createDraft()

			rec := doJSON(server, "PUT", "/api/invoices/"+inv.ID, CreateInvoiceRequest{
				FileID: "f1",
				Vendor: "Acme Supply Co.",
				Total:  90.00,
				Status: StatusApproved,
			})
			Expect(rec.Code).To(Equal(http.StatusOK))

			var updated Invoice
			Expect(json.Unmarshal(rec.Body.Bytes(), &updated)).To(Succeed())
			Expect(updated.Status).To(Equal(StatusApproved))
			Expect(updated.TotalCents).To(Equal(9000))
		})

		It("deletes an invoice", func() {
			inv := createDraft()

			Expect(doJSON(server, "DELETE", "/api/invoices/"+inv.ID, nil).Code).To(Equal(http.StatusNoContent))
			Expect(doJSON(server, "GET", "/api/invoices/"+inv.ID, nil).Code).To(Equal(http.StatusNotFound))
		})

		It("serves the stored document with a sniffed content type", func() {
			store.files["f1"] = []byte("%PDF-1.7 content")
			inv := createDraft()

			rec := doJSON(server, "GET", "/api/invoices/"+inv.ID+"/file", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/pdf"))
		})
	})

	Describe("vendors", func() {
		It("creates and lists vendors", func() {
			rec := doJSON(server, "POST", "/api/vendors", map[string]string{"name": "Acme Supply Co."})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var vendor Vendor
			Expect(json.Unmarshal(rec.Body.Bytes(), &vendor)).To(Succeed())
			Expect(vendor.Name).To(Equal("Acme Supply Co."))

			rec = doJSON(server, "GET", "/api/vendors", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var vendors []Vendor
			Expect(json.Unmarshal(rec.Body.Bytes(), &vendors)).To(Succeed())
			Expect(vendors).To(HaveLen(1))

			Expect(doJSON(server, "GET", "/api/vendors/"+vendor.ID, nil).Code).To(Equal(http.StatusOK))
			Expect(doJSON(server, "GET", "/api/vendors/nope", nil).Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("exports", func() {
		It("downloads CSV with a dated filename", func() {
			rec := doJSON(server, "GET", "/api/export/csv", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("text/csv"))
			Expect(rec.Header().Get("Content-Disposition")).To(SatisfyAll(
				ContainSubstring("invoicebox-export-"),
				ContainSubstring(".csv"),
			))
			Expect(strings.Split(rec.Body.String(), "\n")[0]).To(Equal("Vendor,Date,Invoice#,Total,Status"))
		})

		It("downloads a workbook", func() {
			rec := doJSON(server, "GET", "/api/export/xlsx", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(rec.Body.Len()).NotTo(BeZero())
		})
	})
})
