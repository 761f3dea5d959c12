package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abgdnv/productcatalog/internal/product/model"
)

var (
	ErrUnknownField = errors.New("unknown form field")
	ErrInvalidPrice = errors.New("price must be a number")
)

// Form fields accepted by Set.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPrice       = "price"
)

// Values is the text entered in the form.
type Values struct {
	Name        string
	Description string
	Price       string
}

// ProductForm creates a product or edits an existing one.
type ProductForm struct {
	catalog Catalog
	nav     Navigator
	out     io.Writer

	// id is empty in create mode
	id     string
	values Values
	life   lifetime
}

// NewCreateForm creates an empty form that adds a product on submit.
func NewCreateForm(catalog Catalog, nav Navigator, out io.Writer) *ProductForm {
	return &ProductForm{catalog: catalog, nav: nav, out: out}
}

// NewEditForm creates a form for the product with the given id. Mount prefills it.
func NewEditForm(catalog Catalog, nav Navigator, out io.Writer, id string) *ProductForm {
	return &ProductForm{catalog: catalog, nav: nav, out: out, id: id}
}

// Editing reports whether the form edits an existing product.
func (f *ProductForm) Editing() bool {
	return f.id != ""
}

// Mount prefills the form in edit mode, loading the product if the collection
// does not hold it. If the product cannot be found the user is sent back to the list.
func (f *ProductForm) Mount(ctx context.Context) bool {
	if !f.Editing() {
		return true
	}
	p, ok := f.catalog.Find(f.id)
	if !ok {
		if f.life.ended() {
			return false
		}
		bound, cancel := f.life.bind(ctx)
		defer cancel()
		p, ok = f.catalog.LoadOne(bound, f.id)
		if !ok {
			if bound.Err() == nil {
				f.nav.ToList(fmt.Sprintf("Product with ID %s not found.", f.id))
			}
			return false
		}
	}
	f.values = Values{
		Name:        p.Name,
		Description: p.Description,
		Price:       strconv.FormatFloat(p.Price, 'f', -1, 64),
	}
	return true
}

// Unmount cancels the requests started by the form.
func (f *ProductForm) Unmount() {
	f.life.end()
}

// Set stores the text of a field. A price that is not a number is kept
// as entered and reported.
func (f *ProductForm) Set(field, value string) error {
	switch field {
	case FieldName:
		f.values.Name = value
	case FieldDescription:
		f.values.Description = value
	case FieldPrice:
		f.values.Price = value
		if _, err := parsePrice(value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// Values returns the entered text.
func (f *ProductForm) Values() Values {
	return f.values
}

// Submit creates or updates the product. On success it navigates to the list,
// on failure it prints the error and keeps the entered values.
func (f *ProductForm) Submit(ctx context.Context) bool {
	if f.life.ended() {
		return false
	}
	price, err := parsePrice(f.values.Price)
	if err != nil {
		f.printError(err.Error())
		return false
	}
	draft := model.Draft{
		Name:        strings.TrimSpace(f.values.Name),
		Description: strings.TrimSpace(f.values.Description),
		Price:       price,
	}

	bound, cancel := f.life.bind(ctx)
	defer cancel()
	var ok bool
	var notice string
	if f.Editing() {
		_, ok = f.catalog.Update(bound, f.id, draft.WithID(f.id))
		notice = "Product updated."
	} else {
		_, ok = f.catalog.Create(bound, draft)
		notice = "Product added."
	}
	if ok {
		f.nav.ToList(notice)
		return true
	}
	if bound.Err() == nil {
		msg := f.catalog.Snapshot().Error
		if msg == "" {
			msg = "Failed to save product."
		}
		f.printError(msg)
	}
	return false
}

func (f *ProductForm) printError(msg string) {
	_, _ = fmt.Fprintf(f.out, "Error: %s\n", msg)
}

func parsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	return price, nil
}
