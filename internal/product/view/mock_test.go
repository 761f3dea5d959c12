package view

import (
	"context"
	"sync"

	"github.com/abgdnv/productcatalog/internal/product/model"
	"github.com/abgdnv/productcatalog/internal/product/store"
)

// mockCatalog is a hand-written Catalog. Unset funcs succeed with zero values.
type mockCatalog struct {
	mu       sync.Mutex
	snapshot store.Snapshot
	calls    []string

	find    func(id string) (model.Product, bool)
	refresh func(ctx context.Context)
	loadOne func(ctx context.Context, id string) (model.Product, bool)
	create  func(ctx context.Context, draft model.Draft) (model.Product, bool)
	update  func(ctx context.Context, id string, product model.Product) (model.Product, bool)
	delete  func(ctx context.Context, id string) bool
}

func (m *mockCatalog) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockCatalog) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockCatalog) Snapshot() store.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *mockCatalog) setError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Error = msg
}

func (m *mockCatalog) Find(id string) (model.Product, bool) {
	if m.find == nil {
		return model.Product{}, false
	}
	return m.find(id)
}

func (m *mockCatalog) Refresh(ctx context.Context) {
	m.record("refresh")
	if m.refresh != nil {
		m.refresh(ctx)
	}
}

func (m *mockCatalog) LoadOne(ctx context.Context, id string) (model.Product, bool) {
	m.record("loadOne " + id)
	if m.loadOne == nil {
		return model.Product{}, false
	}
	return m.loadOne(ctx, id)
}

func (m *mockCatalog) Create(ctx context.Context, draft model.Draft) (model.Product, bool) {
	m.record("create")
	if m.create == nil {
		return draft.WithID("new"), true
	}
	return m.create(ctx, draft)
}

func (m *mockCatalog) Update(ctx context.Context, id string, product model.Product) (model.Product, bool) {
	m.record("update " + id)
	if m.update == nil {
		return product, true
	}
	return m.update(ctx, id, product)
}

func (m *mockCatalog) Delete(ctx context.Context, id string) bool {
	m.record("delete " + id)
	if m.delete == nil {
		return true
	}
	return m.delete(ctx, id)
}

// mockNavigator records the notices it was sent with.
type mockNavigator struct {
	notices []string
}

func (n *mockNavigator) ToList(notice string) {
	n.notices = append(n.notices, notice)
}
