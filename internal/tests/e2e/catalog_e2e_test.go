// Package e2e provides end-to-end tests for the catalog client.
// The suite runs the sandbox product API in an `httptest.Server` and drives it through
// the real REST client, product service, store and views. It uses `testify/suite` for
// structure and lifecycle management (`SetupTest`, `TearDownTest`).
//
// Key features of the test suite:
//   - Each test gets a fresh in-memory repository and server.
//   - List responses can be held back after they are produced, to replay overlapping
//     operations in a chosen order.
//   - Test coverage includes:
//   - Loading, creating, updating and deleting products through the store.
//   - Server side rejections and not found answers surfaced as store errors.
//   - Stale list responses not overwriting newer mutations.
//   - Cancellation of in-flight work when a view unmounts.
package e2e

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/productcatalog/internal/config"
	"github.com/abgdnv/productcatalog/internal/product/app"
	"github.com/abgdnv/productcatalog/internal/product/model"
	"github.com/abgdnv/productcatalog/internal/product/sandbox"
	"github.com/abgdnv/productcatalog/internal/product/view"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// skipE2ETests is the environment variable that can be set to skip E2E tests.
const skipE2ETests = "CATALOG_SKIP_E2E_TESTS"

// CatalogE2ESuite is a test suite for end-to-end tests of the catalog client.
type CatalogE2ESuite struct {
	suite.Suite                           // Embedding testify's suite for structured testing
	repo        sandbox.ProductRepository // Storage of the sandbox API
	server      *httptest.Server          // HTTP server running the sandbox API
	deps        *app.Dependencies         // Client side wiring under test
	hold        *holdList                 // Holds list responses back when armed
	logger      *slog.Logger              // Logger for the test suite
}

// holdList delays GET list responses until released. The response is produced first,
// so it reflects the repository at the time the request arrived.
type holdList struct {
	mu       sync.Mutex
	armed    bool
	produced chan struct{}
	release  chan struct{}
}

func (h *holdList) arm() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.armed = true
	h.produced = make(chan struct{})
	h.release = make(chan struct{})
}

func (h *holdList) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		armed, produced, release := h.armed, h.produced, h.release
		if r.Method == http.MethodGet && r.URL.Path == sandbox.BasePath {
			h.armed = false
		} else {
			armed = false
		}
		h.mu.Unlock()

		if !armed {
			next.ServeHTTP(w, r)
			return
		}
		rec := httptest.NewRecorder()
		next.ServeHTTP(rec, r)
		close(produced)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	})
}

// testConfig creates a configuration pointing the client at url.
func testConfig(url string) *config.Config {
	var cfg config.Config
	cfg.API.BaseURL = url + "/api"
	cfg.API.Timeout = 10 * time.Second
	return &cfg
}

// SetupTest starts a fresh sandbox API and client for each test.
func (s *CatalogE2ESuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.repo = sandbox.NewInMemoryRepository(
		model.Product{ID: "1", Name: "Pen", Price: 1.5},
	)
	s.hold = &holdList{}
	s.server = httptest.NewServer(s.hold.middleware(app.SetupSandboxHandler(s.repo, 0, s.logger)))

	var err error
	s.deps, err = app.SetupDependencies(testConfig(s.server.URL), s.logger)
	require.NoError(s.T(), err, "Failed to set up dependencies")
}

// TearDownTest stops the client and the server.
func (s *CatalogE2ESuite) TearDownTest() {
	s.deps.Close()
	s.server.Close()
}

// TestCatalogE2E runs the catalog end-to-end tests.
func TestCatalogE2E(t *testing.T) {
	// Skip e2e tests if the environment variable is set
	if os.Getenv(skipE2ETests) == "1" {
		t.Skip("Skipping e2e tests based on " + skipE2ETests + " env var")
	}
	// Run the test suite
	suite.Run(t, new(CatalogE2ESuite))
}

func (s *CatalogE2ESuite) TestLifecycle_E2E() {
	ctx := context.Background()
	catalog := s.deps.Store

	// initial load
	catalog.Refresh(ctx)
	s.Require().Equal([]model.Record{model.Product{ID: "1", Name: "Pen", Price: 1.5}}, catalog.Products())
	s.Require().Empty(catalog.Err())
	s.Require().False(catalog.Loading())

	// create appends the server record
	cup, ok := catalog.Create(ctx, model.Draft{Name: "Cup", Price: 3})
	s.Require().True(ok)
	s.Require().NotEmpty(cup.ID)
	s.Require().Equal([]model.Record{model.Product{ID: "1", Name: "Pen", Price: 1.5}, cup}, catalog.Products())

	// update replaces in place
	mug, ok := catalog.Update(ctx, cup.ID, model.Product{ID: cup.ID, Name: "Mug", Price: 4})
	s.Require().True(ok)
	s.Require().Equal([]model.Record{model.Product{ID: "1", Name: "Pen", Price: 1.5}, mug}, catalog.Products())

	// repeated refresh with an unchanged server leaves the collection as is
	before := catalog.Products()
	catalog.Refresh(ctx)
	catalog.Refresh(ctx)
	s.Require().Equal(before, catalog.Products())

	// delete removes exactly that entry
	s.Require().True(catalog.Delete(ctx, "1"))
	s.Require().Equal([]model.Record{mug}, catalog.Products())
	_, err := s.repo.FindByID("1")
	s.Require().Error(err)
}

func (s *CatalogE2ESuite) TestDeleteNotFound_E2E() {
	ctx := context.Background()
	catalog := s.deps.Store
	catalog.Refresh(ctx)
	before := catalog.Products()

	ok := catalog.Delete(ctx, "7")

	s.Require().False(ok)
	s.Require().Equal(before, catalog.Products())
	s.Require().Equal("Product with ID 7 not found", catalog.Err())
}

func (s *CatalogE2ESuite) TestLoadOne_E2E() {
	ctx := context.Background()
	catalog := s.deps.Store

	s.Run("fetched and inserted", func() {
		p, ok := catalog.LoadOne(ctx, "1")
		s.Require().True(ok)
		s.Require().Equal(model.Product{ID: "1", Name: "Pen", Price: 1.5}, p)
		s.Require().Equal([]model.Record{p}, catalog.Products())
	})

	s.Run("not found", func() {
		before := catalog.Products()
		_, ok := catalog.LoadOne(ctx, "99")
		s.Require().False(ok)
		s.Require().Equal(before, catalog.Products())
		s.Require().NotEmpty(catalog.Err())
	})

	s.Run("created product is served from the collection", func() {
		cup, ok := catalog.Create(ctx, model.Draft{Name: "Cup", Price: 3})
		s.Require().True(ok)
		s.Require().NoError(s.repo.DeleteByID(cup.ID))

		p, ok := catalog.LoadOne(ctx, cup.ID)
		s.Require().True(ok, "no request is made for a cached product")
		s.Require().Equal(cup, p)
	})
}

func (s *CatalogE2ESuite) TestServerRejection_E2E() {
	ctx := context.Background()
	catalog := s.deps.Store

	_, ok := catalog.Update(ctx, "1", model.Product{ID: "1", Name: "Pen", Price: -1})
	s.Require().False(ok)
	s.Require().Equal("invalid product: productPrice failed on rule: gte", catalog.Err())

	// an id the server does not know
	_, ok = catalog.Update(ctx, "2", model.Product{ID: "2", Name: "Ghost", Price: 1})
	s.Require().False(ok)
	s.Require().Equal("Product with ID 2 not found", catalog.Err())
	s.Require().Empty(catalog.Products())
}

func (s *CatalogE2ESuite) TestStaleRefreshKeepsNewerCreate_E2E() {
	// given
	ctx := context.Background()
	catalog := s.deps.Store
	s.hold.arm()
	produced, release := s.hold.produced, s.hold.release

	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		catalog.Refresh(ctx)
	}()
	<-produced // the list holds only Pen

	// when
	cup, ok := catalog.Create(ctx, model.Draft{Name: "Cup", Price: 3})
	s.Require().True(ok)
	close(release)
	<-refreshed

	// then
	s.Require().Equal([]model.Record{model.Product{ID: "1", Name: "Pen", Price: 1.5}, cup}, catalog.Products())
	s.Require().False(catalog.Loading())
	s.Require().Empty(catalog.Err())
}

func (s *CatalogE2ESuite) TestUnmountCancelsLoad_E2E() {
	// given
	s.hold.arm()
	produced := s.hold.produced
	out := &bytes.Buffer{}
	list := view.NewProductList(s.deps.Store, out, nil)

	mounted := make(chan struct{})
	go func() {
		defer close(mounted)
		list.Mount(context.Background())
	}()
	<-produced
	s.Require().True(s.deps.Store.Loading())

	// when
	list.Unmount()
	<-mounted

	// then
	s.Require().False(s.deps.Store.Loading())
	s.Require().Empty(s.deps.Store.Err(), "a cancelled load leaves no error")
	s.Require().Empty(s.deps.Store.Products())
	close(s.hold.release)
}

func (s *CatalogE2ESuite) TestViews_E2E() {
	// given
	ctx := context.Background()
	out := &bytes.Buffer{}
	list := view.NewProductList(s.deps.Store, out, view.ConfirmFunc(func(string) bool { return true }))
	nav := view.NewListNavigator(out, list)
	list.Mount(ctx)

	// when
	form := view.NewCreateForm(s.deps.Store, nav, out)
	s.Require().NoError(form.Set(view.FieldName, "Cup"))
	s.Require().NoError(form.Set(view.FieldPrice, "3"))
	s.Require().True(form.Submit(ctx))

	edit := view.NewEditForm(s.deps.Store, nav, out, "1")
	s.Require().True(edit.Mount(ctx))
	s.Require().Equal(view.Values{Name: "Pen", Price: "1.5"}, edit.Values())
	s.Require().NoError(edit.Set(view.FieldDescription, "Blue ink"))
	s.Require().True(edit.Submit(ctx))

	// then
	products := s.repo.FindAll()
	s.Require().Len(products, 2)
	s.Require().Equal(model.Product{ID: "1", Name: "Pen", Description: "Blue ink", Price: 1.5}, products[0])
	s.Require().Contains(out.String(), "Product updated.\n[1] Pen\n    Blue ink\n    $1.50\n")

	// delete through the list without a refetch
	s.Require().True(list.RequestDelete(ctx, products[1].ID))
	out.Reset()
	s.Require().NoError(list.Render())
	s.Require().Equal("[1] Pen\n    Blue ink\n    $1.50\n", out.String())
}
