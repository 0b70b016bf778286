package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	invoiceBucketName    = "invoices"
	vendorBucketName     = "vendors"
	vendorNameBucketName = "vendors_by_name"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveInvoice saves an invoice to the database
	SaveInvoice(inv *Invoice) error

	// GetInvoice retrieves an invoice by ID
	GetInvoice(id string) (*Invoice, error)

	// ListInvoices returns invoices newest first, optionally filtered by
	// status ("" means all)
	ListInvoices(status Status) ([]*Invoice, error)

	// DeleteInvoice removes an invoice from the database
	DeleteInvoice(id string) error

	// SaveVendor saves a vendor and its name index entry
	SaveVendor(vendor *Vendor) error

	// GetVendor retrieves a vendor by ID
	GetVendor(id string) (*Vendor, error)

	// GetVendorByName retrieves a vendor by exact name
	GetVendorByName(name string) (*Vendor, error)

	// ListVendors returns all vendors sorted by name
	ListVendors() ([]*Vendor, error)

	// Ping verifies the database is reachable
	Ping() error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{invoiceBucketName, vendorBucketName, vendorNameBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveInvoice saves an invoice to the database
func (b *BoltDB) SaveInvoice(inv *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		data, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("marshaling invoice: %w", err)
		}
		return bucket.Put([]byte(inv.ID), data)
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*Invoice, error) {
	var inv *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns invoices newest first, optionally filtered by status
func (b *BoltDB) ListInvoices(status Status) ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var inv Invoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			if status != "" && inv.Status != status {
				return nil
			}
			invoices = append(invoices, &inv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
	return invoices, nil
}

// DeleteInvoice removes an invoice from the database
func (b *BoltDB) DeleteInvoice(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		return bucket.Delete([]byte(id))
	})
}

// SaveVendor saves a vendor and indexes it by name
func (b *BoltDB) SaveVendor(vendor *Vendor) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vendorBucketName))
		data, err := json.Marshal(vendor)
		if err != nil {
			return fmt.Errorf("marshaling vendor: %w", err)
		}
		if err := bucket.Put([]byte(vendor.ID), data); err != nil {
			return err
		}
		index := tx.Bucket([]byte(vendorNameBucketName))
		return index.Put([]byte(vendor.Name), []byte(vendor.ID))
	})
}

// GetVendor retrieves a vendor by ID
func (b *BoltDB) GetVendor(id string) (*Vendor, error) {
	var vendor *Vendor
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vendorBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("vendor %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &vendor)
	})
	if err != nil {
		return nil, err
	}
	return vendor, nil
}

// GetVendorByName retrieves a vendor through the name index
func (b *BoltDB) GetVendorByName(name string) (*Vendor, error) {
	var id []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(vendorNameBucketName))
		v := index.Get([]byte(name))
		if v == nil {
			return fmt.Errorf("vendor %q: %w", name, ErrNotFound)
		}
		id = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.GetVendor(string(id))
}

// ListVendors returns all vendors sorted by name
func (b *BoltDB) ListVendors() ([]*Vendor, error) {
	vendors := make([]*Vendor, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vendorBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var vendor Vendor
			if err := json.Unmarshal(v, &vendor); err != nil {
				return fmt.Errorf("unmarshaling vendor: %w", err)
			}
			vendors = append(vendors, &vendor)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(vendors, func(i, j int) bool {
		return vendors[i].Name < vendors[j].Name
	})
	return vendors, nil
}

// Ping verifies the database is reachable
func (b *BoltDB) Ping() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(invoiceBucketName)) == nil {
			return fmt.Errorf("invoice bucket missing")
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
