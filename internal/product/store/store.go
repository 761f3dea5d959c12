// Package store holds the client side copy of the product catalog.
//
// A Store owns the product collection together with the loading and error
// state shared by every view. Only the Store mutates that state: views call
// its operations and read snapshots.
//
// Operations may overlap. Each one takes a ticket from a single counter when
// it is issued, and a response is applied only if nothing causally newer has
// already been applied: a list response loses against a newer list response,
// a mutation of one product loses against a newer mutation of the same product
// or a newer list response. A list response keeps the local state of products
// mutated by operations issued after it.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	producterrors "github.com/abgdnv/productcatalog/internal/product/errors"
	"github.com/abgdnv/productcatalog/internal/product/model"
	"github.com/abgdnv/productcatalog/internal/product/service"
	"golang.org/x/sync/singleflight"
)

// Snapshot is a copy of the store state.
type Snapshot struct {
	Products []model.Record
	Loading  bool
	// Error is the message of the last failed operation, "" if none.
	Error string
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers fn to be called with a fresh snapshot after every state change.
// Observers run on the goroutine of the operation, outside the store lock, one
// at a time. A snapshot older than one already delivered is dropped. Observers
// may read the store but must not start operations on it.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Store) {
		s.observers = append(s.observers, fn)
	}
}

type change int

const (
	upsert change = iota // replace in place, append if absent
	replace              // replace in place only
	remove
)

// mutation is the last applied change of a single product.
type mutation struct {
	ticket uint64
	change change
	record model.Record
}

// lookup is a LoadOne request shared by the callers waiting for one id.
// Its context is cancelled once no caller waits any more.
type lookup struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// published is a snapshot with its position in the order of state changes.
type published struct {
	seq  uint64
	snap Snapshot
}

// Store is the authoritative in-memory view of the remote catalog.
type Store struct {
	service   service.ProductService
	logger    *slog.Logger
	observers []func(Snapshot)
	loads     singleflight.Group
	started   sync.Once

	life   context.Context
	cancel context.CancelFunc

	notifyMu  sync.Mutex
	delivered uint64

	mu       sync.Mutex
	products []model.Record
	// tickets of the operations in flight
	pending map[uint64]struct{}
	errMsg  string
	ticket  uint64
	// ticket of the list response currently applied
	listed  uint64
	applied map[string]mutation
	lookups map[string]*lookup
	lookupN uint64
	version uint64
}

// New creates a Store backed by svc. The store lives until Close is called.
func New(svc service.ProductService, logger *slog.Logger, opts ...Option) *Store {
	life, cancel := context.WithCancel(context.Background())
	s := &Store{
		service: svc,
		logger:  logger.With("component", "product-store"),
		life:    life,
		cancel:  cancel,
		pending: make(map[uint64]struct{}),
		applied: make(map[string]mutation),
		lookups: make(map[string]*lookup),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the first load of the collection. Only the first call has an effect.
func (s *Store) Start(ctx context.Context) {
	s.started.Do(func() {
		s.Refresh(ctx)
	})
}

// Close cancels all in-flight requests. Operations called afterwards do nothing.
func (s *Store) Close() {
	s.cancel()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Products returns a copy of the collection.
func (s *Store) Products() []model.Record {
	return s.Snapshot().Products
}

// Loading reports whether any operation is in flight.
func (s *Store) Loading() bool {
	return s.Snapshot().Loading
}

// Err returns the message of the last failure, "" if the last operation succeeded.
func (s *Store) Err() string {
	return s.Snapshot().Error
}

// Find returns the valid product with the given id from the collection.
func (s *Store) Find(id string) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.products, id); i >= 0 {
		p, ok := s.products[i].(model.Product)
		return p, ok
	}
	return model.Product{}, false
}

// Refresh replaces the collection with the server list. On failure the
// collection is left untouched and the error message is set.
func (s *Store) Refresh(ctx context.Context) {
	ctx, ticket, done, ok := s.begin(ctx, "refresh")
	if !ok {
		return
	}
	defer done()

	records, err := s.service.List(ctx)
	if err != nil {
		s.fail(ctx, err, "Failed to load products.", func() bool {
			return ticket < s.listed
		})
		return
	}
	s.applyList(ctx, ticket, records)
}

// LoadOne returns the product with the given id, from the collection if present,
// otherwise from the server. A fetched product is inserted or replaced by id.
//
// Concurrent misses for one id share a single request. A caller whose ctx is
// done stops waiting, and the request is cancelled when the last caller leaves.
func (s *Store) LoadOne(ctx context.Context, id string) (model.Product, bool) {
	if p, ok := s.Find(id); ok {
		return p, true
	}
	l := s.join(ctx, id)
	defer s.leave(id, l)

	ch := s.loads.DoChan(l.key, func() (any, error) {
		return s.fetchOne(l.ctx, id)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return model.Product{}, false
		}
		return r.Val.(model.Product), true
	case <-ctx.Done():
		return model.Product{}, false
	}
}

// join registers the caller with the lookup in progress for id, starting a new one if none is.
func (s *Store) join(ctx context.Context, id string) *lookup {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookups[id]
	if !ok {
		s.lookupN++
		lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		l = &lookup{key: fmt.Sprintf("%s#%d", id, s.lookupN), ctx: lctx, cancel: cancel}
		s.lookups[id] = l
	}
	l.waiters++
	return l
}

func (s *Store) leave(id string, l *lookup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.waiters--
	if l.waiters == 0 {
		l.cancel()
		delete(s.lookups, id)
	}
}

func (s *Store) fetchOne(ctx context.Context, id string) (model.Product, error) {
	ctx, ticket, done, ok := s.begin(ctx, "load")
	if !ok {
		return model.Product{}, context.Canceled
	}
	defer done()

	p, err := s.service.Get(ctx, id)
	if err != nil {
		msg := fmt.Sprintf("Failed to load product %s.", id)
		if errors.Is(err, producterrors.ErrProductNotFound) {
			msg = fmt.Sprintf("Product with ID %s not found.", id)
		}
		s.fail(ctx, err, msg, s.staleFor(ticket, id))
		return model.Product{}, err
	}
	s.applyMutation(ctx, ticket, id, upsert, p)
	return p, nil
}

// Create sends draft to the server and appends the created product.
// Nothing is added locally before the server accepts it.
func (s *Store) Create(ctx context.Context, draft model.Draft) (model.Product, bool) {
	ctx, ticket, done, ok := s.begin(ctx, "create")
	if !ok {
		return model.Product{}, false
	}
	defer done()

	p, err := s.service.Create(ctx, draft)
	if err != nil {
		s.fail(ctx, err, "Failed to add product.", nil)
		return model.Product{}, false
	}
	s.applyMutation(ctx, ticket, p.ID, upsert, p)
	return p, true
}

// Update replaces the product with the given id by the record returned by the server.
func (s *Store) Update(ctx context.Context, id string, product model.Product) (model.Product, bool) {
	ctx, ticket, done, ok := s.begin(ctx, "update")
	if !ok {
		return model.Product{}, false
	}
	defer done()

	p, err := s.service.Update(ctx, id, product)
	if err != nil {
		s.fail(ctx, err, "Failed to update product.", s.staleFor(ticket, id))
		return model.Product{}, false
	}
	s.applyMutation(ctx, ticket, id, replace, p)
	return p, true
}

// Delete removes the product with the given id once the server confirms it.
// Asking the user for confirmation is up to the caller.
func (s *Store) Delete(ctx context.Context, id string) bool {
	ctx, ticket, done, ok := s.begin(ctx, "delete")
	if !ok {
		return false
	}
	defer done()

	if err := s.service.Delete(ctx, id); err != nil {
		s.fail(ctx, err, "Failed to delete product.", s.staleFor(ticket, id))
		return false
	}
	s.applyMutation(ctx, ticket, id, remove, nil)
	return true
}

// begin issues a ticket, marks the store as loading and clears the error.
// The returned done func releases the loading share exactly once.
func (s *Store) begin(ctx context.Context, op string) (context.Context, uint64, func(), bool) {
	if s.life.Err() != nil {
		s.logger.DebugContext(ctx, "Store closed, operation ignored", "op", op)
		return ctx, 0, nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)

	s.mu.Lock()
	s.ticket++
	ticket := s.ticket
	s.pending[ticket] = struct{}{}
	s.errMsg = ""
	pub := s.publishLocked()
	s.mu.Unlock()
	s.notify(pub)

	var once sync.Once
	done := func() {
		once.Do(func() {
			stop()
			cancel()
			s.mu.Lock()
			delete(s.pending, ticket)
			s.pruneLocked()
			pub := s.publishLocked()
			s.mu.Unlock()
			s.notify(pub)
		})
	}
	return ctx, ticket, done, true
}

// staleFor reports, under the store lock, whether a newer list or a newer
// change of the product with the given id has already been applied.
func (s *Store) staleFor(ticket uint64, id string) func() bool {
	return func() bool {
		prev, ok := s.applied[id]
		return ticket < s.listed || (ok && prev.ticket > ticket)
	}
}

// fail records the user facing message for err. A cancelled operation
// belongs to a view that is gone, so it leaves no message behind. Neither
// does a failure that stale reports as superseded; a nil stale never is.
func (s *Store) fail(ctx context.Context, err error, fallback string, stale func() bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		s.logger.DebugContext(ctx, "Operation cancelled", "error", err)
		return
	}
	msg := fallback
	switch {
	case errors.Is(err, producterrors.ErrUnavailable):
		msg = "Product service is temporarily unavailable."
	default:
		if m, ok := producterrors.Message(err); ok {
			msg = m
		}
	}
	s.mu.Lock()
	if stale != nil && stale() {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Discarding stale failure", "error", err)
		return
	}
	s.errMsg = msg
	pub := s.publishLocked()
	s.mu.Unlock()
	s.logger.WarnContext(ctx, "Product operation failed", "error", err, "message", msg)
	s.notify(pub)
}

func (s *Store) applyList(ctx context.Context, ticket uint64, records []model.Record) {
	s.mu.Lock()
	if listed := s.listed; ticket < listed {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Discarding stale product list", "ticket", ticket, "applied", listed)
		return
	}
	merged := dedupe(records)

	// keep products changed by operations issued after this list request
	later := make([]string, 0, len(s.applied))
	for id, m := range s.applied {
		if m.ticket < ticket {
			delete(s.applied, id)
			continue
		}
		later = append(later, id)
	}
	slices.SortFunc(later, func(a, b string) int {
		return cmp.Compare(s.applied[a].ticket, s.applied[b].ticket)
	})
	for _, id := range later {
		merged = apply(merged, id, s.applied[id])
	}

	s.products = merged
	s.listed = ticket
	pub := s.publishLocked()
	s.mu.Unlock()
	s.notify(pub)
}

func (s *Store) applyMutation(ctx context.Context, ticket uint64, id string, c change, rec model.Record) {
	s.mu.Lock()
	if s.staleFor(ticket, id)() {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Discarding stale product response", "ID", id, "ticket", ticket)
		return
	}
	m := mutation{ticket: ticket, change: c, record: rec}
	s.applied[id] = m
	s.products = apply(s.products, id, m)
	pub := s.publishLocked()
	s.mu.Unlock()
	s.notify(pub)
}

// pruneLocked forgets the changes no operation in flight is older than.
// Only an older response can be overridden by them.
func (s *Store) pruneLocked() {
	oldest := uint64(math.MaxUint64)
	for t := range s.pending {
		oldest = min(oldest, t)
	}
	for id, m := range s.applied {
		if m.ticket < oldest {
			delete(s.applied, id)
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Products: slices.Clone(s.products),
		Loading:  len(s.pending) > 0,
		Error:    s.errMsg,
	}
}

func (s *Store) publishLocked() published {
	s.version++
	return published{seq: s.version, snap: s.snapshotLocked()}
}

func (s *Store) notify(pub published) {
	if len(s.observers) == 0 {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if pub.seq <= s.delivered {
		return
	}
	s.delivered = pub.seq
	for _, fn := range s.observers {
		fn(pub.snap)
	}
}

// apply applies m to the entry with the given id. records is modified in place.
func apply(records []model.Record, id string, m mutation) []model.Record {
	i := indexOf(records, id)
	switch {
	case m.change == remove:
		if i >= 0 {
			records = slices.Delete(records, i, i+1)
		}
	case i >= 0:
		records[i] = m.record
	case m.change == upsert:
		records = append(records, m.record)
	}
	return records
}

// dedupe keeps one entry per id at the position of its first occurrence,
// carrying the last value. Records without an id are kept as they are.
func dedupe(records []model.Record) []model.Record {
	out := make([]model.Record, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		id := r.RecordID()
		if id == "" {
			out = append(out, r)
			continue
		}
		if i, ok := pos[id]; ok {
			out[i] = r
			continue
		}
		pos[id] = len(out)
		out = append(out, r)
	}
	return out
}

func indexOf(records []model.Record, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(records, func(r model.Record) bool {
		return r.RecordID() == id
	})
}
