// Package model defines the product entity exchanged with the remote catalog API.
package model

import (
	"encoding/json"
	"fmt"
)

// Product is a complete, well-typed product record as accepted by the remote API.
type Product struct {
	ID          string  `json:"productId"`
	Name        string  `json:"productName" validate:"required,max=100"`
	Description string  `json:"productDescription,omitempty" validate:"max=1000"`
	Price       float64 `json:"productPrice" validate:"gte=0"`
}

// Draft holds the fields of a product that has not been assigned an id yet.
type Draft struct {
	Name        string  `json:"productName" validate:"required,max=100"`
	Description string  `json:"productDescription,omitempty" validate:"max=1000"`
	Price       float64 `json:"productPrice" validate:"gte=0"`
}

// Draft returns the product fields without the id.
func (p Product) Draft() Draft {
	return Draft{Name: p.Name, Description: p.Description, Price: p.Price}
}

// WithID returns a product built from the draft fields and the given id.
func (d Draft) WithID(id string) Product {
	return Product{ID: id, Name: d.Name, Description: d.Description, Price: d.Price}
}

// FormatPrice renders the price with two decimals.
func (p Product) FormatPrice() string {
	return fmt.Sprintf("$%.2f", p.Price)
}

// Record is an entry of a product list as received from the remote API.
// It is either a Product or a Malformed payload.
type Record interface {
	// RecordID returns the product id carried by the record, or "" if none could be read.
	RecordID() string
	isRecord()
}

// RecordID implements Record.
func (p Product) RecordID() string { return p.ID }

func (Product) isRecord() {}

// Malformed is a list entry that could not be read as a complete product.
type Malformed struct {
	ID     string
	Raw    json.RawMessage
	Reason string
}

// RecordID implements Record.
func (m Malformed) RecordID() string { return m.ID }

func (Malformed) isRecord() {}
