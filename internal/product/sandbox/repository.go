package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	producterrors "github.com/abgdnv/productcatalog/internal/product/errors"
	"github.com/abgdnv/productcatalog/internal/product/model"
	"github.com/google/uuid"
)

// ProductRepository is the storage behind the sandbox API.
type ProductRepository interface {
	// FindByID returns ErrProductNotFound if no product exists with the given ID.
	FindByID(id string) (model.Product, error)

	// FindAll returns all products in insertion order.
	FindAll() []model.Product

	// Create stores the draft under a new ID.
	Create(draft model.Draft) model.Product

	// Update replaces an existing product.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(product model.Product) (model.Product, error)

	// DeleteByID returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(id string) error
}

// inMemory implements ProductRepository using a map plus an insertion order index.
type inMemory struct {
	mu       sync.RWMutex
	products map[string]model.Product
	order    []string
	newID    func() string
}

// NewInMemoryRepository creates a repository holding the given products.
// Seeded products without an ID get one assigned.
func NewInMemoryRepository(seed ...model.Product) ProductRepository {
	r := &inMemory{
		products: make(map[string]model.Product),
		newID:    uuid.NewString,
	}
	for _, p := range seed {
		if p.ID == "" {
			p.ID = r.newID()
		}
		if _, exists := r.products[p.ID]; !exists {
			r.order = append(r.order, p.ID)
		}
		r.products[p.ID] = p
	}
	return r
}

func (r *inMemory) FindByID(id string) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return model.Product{}, producterrors.ErrProductNotFound
	}
	return p, nil
}

func (r *inMemory) FindAll() []model.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]model.Product, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.products[id])
	}
	return list
}

func (r *inMemory) Create(draft model.Draft) model.Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := draft.WithID(r.newID())
	r.products[p.ID] = p
	r.order = append(r.order, p.ID)
	return p
}

func (r *inMemory) Update(product model.Product) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ID]; !exists {
		return model.Product{}, producterrors.ErrProductNotFound
	}
	r.products[product.ID] = product
	return product, nil
}

func (r *inMemory) DeleteByID(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[id]; !exists {
		return producterrors.ErrProductNotFound
	}
	delete(r.products, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// LoadSeed reads a JSON array of products from path. Every entry must be a valid product
// except for the ID, which may be left out.
func LoadSeed(path string) ([]model.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	products := make([]model.Product, 0, len(raws))
	for i, raw := range raws {
		var p model.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		if err := model.Validate(p); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}
