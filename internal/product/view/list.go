package view

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/abgdnv/productcatalog/internal/product/model"
)

// ProductList shows the collection and handles deletes.
type ProductList struct {
	catalog Catalog
	out     io.Writer
	confirm Confirmer

	mount sync.Once
	life  lifetime
}

// NewProductList creates a list view writing to out.
func NewProductList(catalog Catalog, out io.Writer, confirm Confirmer) *ProductList {
	return &ProductList{catalog: catalog, out: out, confirm: confirm}
}

// Mount loads the collection. Only the first call has an effect.
func (l *ProductList) Mount(ctx context.Context) {
	l.mount.Do(func() {
		if l.life.ended() {
			return
		}
		ctx, cancel := l.life.bind(ctx)
		defer cancel()
		l.catalog.Refresh(ctx)
	})
}

// Unmount cancels the requests started by the view.
func (l *ProductList) Unmount() {
	l.life.end()
}

// Render writes the current state of the collection.
func (l *ProductList) Render() error {
	snap := l.catalog.Snapshot()
	if snap.Error != "" {
		if _, err := fmt.Fprintf(l.out, "Error: %s\n", snap.Error); err != nil {
			return err
		}
	}
	if snap.Loading {
		if _, err := fmt.Fprintln(l.out, "Loading..."); err != nil {
			return err
		}
	}
	if len(snap.Products) == 0 && !snap.Loading {
		_, err := fmt.Fprintln(l.out, "No products found.")
		return err
	}
	for _, rec := range snap.Products {
		var err error
		switch r := rec.(type) {
		case model.Product:
			err = RenderProduct(l.out, r)
		case model.Malformed:
			_, err = fmt.Fprintf(l.out, "! Product %s could not be shown: %s\n", displayID(r.ID), r.Reason)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RequestDelete deletes the product after the user confirms it.
// It reports whether the product was deleted.
func (l *ProductList) RequestDelete(ctx context.Context, id string) bool {
	if l.life.ended() {
		return false
	}
	if !l.confirm.Confirm(fmt.Sprintf("Delete product %s?", id)) {
		return false
	}
	ctx, cancel := l.life.bind(ctx)
	defer cancel()
	if l.catalog.Delete(ctx, id) {
		return true
	}
	if ctx.Err() == nil {
		msg := l.catalog.Snapshot().Error
		if msg == "" {
			msg = "Failed to delete product."
		}
		_, _ = fmt.Fprintf(l.out, "Error: %s\n", msg)
	}
	return false
}

func displayID(id string) string {
	if id == "" {
		return "without ID"
	}
	return id
}
