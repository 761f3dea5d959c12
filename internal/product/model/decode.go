package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	producterrors "github.com/abgdnv/productcatalog/internal/product/errors"
)

// DecodeRecord reads a single list entry. It never fails: anything that is not a
// valid product comes back as Malformed with the raw payload attached.
func DecodeRecord(raw json.RawMessage) Record {
	p, id, reason := decode(raw)
	if reason != "" {
		return Malformed{ID: id, Raw: append(json.RawMessage(nil), raw...), Reason: reason}
	}
	return p
}

// DecodeRecords reads a JSON array of products.
func DecodeRecords(body []byte) ([]Record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode product list: %w", err)
	}
	records := make([]Record, len(raws))
	for i, raw := range raws {
		records[i] = DecodeRecord(raw)
	}
	return records, nil
}

// DecodeProduct reads a single product and fails with ErrMalformed when the payload is incomplete.
func DecodeProduct(body []byte) (Product, error) {
	p, _, reason := decode(body)
	if reason != "" {
		return Product{}, fmt.Errorf("%w: %s", producterrors.ErrMalformed, reason)
	}
	return p, nil
}

func decode(raw []byte) (Product, string, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Product{}, "", "not a JSON object"
	}

	var p Product
	if err := decodeField(fields, "productId", &p.ID); err != nil || p.ID == "" {
		return Product{}, "", "productId is missing or not a string"
	}
	if err := decodeField(fields, "productName", &p.Name); err != nil {
		return Product{}, p.ID, "productName is not a string"
	}
	if err := decodeField(fields, "productDescription", &p.Description); err != nil {
		return Product{}, p.ID, "productDescription is not a string"
	}

	price, ok := fields["productPrice"]
	if !ok || isNull(price) {
		return Product{}, p.ID, "productPrice is missing"
	}
	if err := json.Unmarshal(price, &p.Price); err != nil {
		return Product{}, p.ID, "productPrice is not a number"
	}
	if err := Validate(p); err != nil {
		return Product{}, p.ID, err.Error()
	}
	return p, p.ID, ""
}

// decodeField leaves dst untouched when the field is absent or null.
func decodeField(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
