// Package service translates product operations into calls to the remote catalog API.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/abgdnv/productcatalog/internal/platform/rest"
	producterrors "github.com/abgdnv/productcatalog/internal/product/errors"
	"github.com/abgdnv/productcatalog/internal/product/model"
)

// ProductService defines the remote product operations.
// Every call is a single request: no retries, no caching.
type ProductService interface {
	// List returns all products in server order. Entries that are not
	// complete products are returned as model.Malformed.
	List(ctx context.Context) ([]model.Record, error)

	// Get retrieves a single product by its id.
	// Returns ErrProductNotFound if the server reports 404.
	Get(ctx context.Context, id string) (model.Product, error)

	// Create sends a draft and returns the product with its server assigned id.
	Create(ctx context.Context, draft model.Draft) (model.Product, error)

	// Update replaces the product with the given id and returns the stored record.
	Update(ctx context.Context, id string, product model.Product) (model.Product, error)

	// Delete removes the product with the given id. Any failure, including a
	// 404 that also matches ErrProductNotFound, is reported as ErrFetch.
	Delete(ctx context.Context, id string) error
}

const productsPath = "products"

// service implements ProductService over HTTP.
type service struct {
	client *rest.Client
	logger *slog.Logger
}

// NewService creates a ProductService talking to the API behind client.
func NewService(client *rest.Client, logger *slog.Logger) ProductService {
	return &service{
		client: client,
		logger: logger.With("component", "product-service"),
	}
}

func (s *service) List(ctx context.Context) ([]model.Record, error) {
	const op = "list products"
	resp, err := s.client.Do(ctx, http.MethodGet, productsPath, nil)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	records, err := model.DecodeRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, producterrors.ErrFetch, err)
	}
	for _, r := range records {
		if m, ok := r.(model.Malformed); ok {
			s.logger.WarnContext(ctx, "Malformed product in list", "ID", m.ID, "reason", m.Reason)
		}
	}
	return records, nil
}

func (s *service) Get(ctx context.Context, id string) (model.Product, error) {
	op := fmt.Sprintf("get product %s", id)
	resp, err := s.client.Do(ctx, http.MethodGet, productPath(id), nil)
	if err != nil {
		return model.Product{}, s.fail(ctx, op, err)
	}
	return decode(op, resp.Body)
}

func (s *service) Create(ctx context.Context, draft model.Draft) (model.Product, error) {
	const op = "create product"
	if err := model.ValidateDraft(draft); err != nil {
		return model.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := s.client.Do(ctx, http.MethodPost, productsPath, draft)
	if err != nil {
		return model.Product{}, s.fail(ctx, op, err)
	}
	return decode(op, resp.Body)
}

func (s *service) Update(ctx context.Context, id string, product model.Product) (model.Product, error) {
	op := fmt.Sprintf("update product %s", id)
	if product.ID == "" {
		product.ID = id
	}
	if product.ID != id {
		return model.Product{}, fmt.Errorf("%s: %w", op, &producterrors.ValidationError{
			Fields: []producterrors.FieldError{{Field: "productId", Rule: "eqfield=id"}},
		})
	}
	if err := model.Validate(product); err != nil {
		return model.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := s.client.Do(ctx, http.MethodPut, productPath(id), product)
	if err != nil {
		return model.Product{}, s.fail(ctx, op, err)
	}
	// some servers acknowledge an update without echoing the record
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return product, nil
	}
	return decode(op, resp.Body)
}

func (s *service) Delete(ctx context.Context, id string) error {
	op := fmt.Sprintf("delete product %s", id)
	if _, err := s.client.Do(ctx, http.MethodDelete, productPath(id), nil); err != nil {
		err = s.fail(ctx, op, err)
		if !errors.Is(err, producterrors.ErrFetch) {
			// the server did not acknowledge the delete
			return fmt.Errorf("%w: %w", producterrors.ErrFetch, err)
		}
		return err
	}
	return nil
}

func productPath(id string) string {
	return productsPath + "/" + url.PathEscape(id)
}

func decode(op string, body []byte) (model.Product, error) {
	p, err := model.DecodeProduct(body)
	if err != nil {
		return model.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// fail maps a transport or HTTP failure onto the product error taxonomy.
func (s *service) fail(ctx context.Context, op string, err error) error {
	var httpErr *rest.HTTPError
	switch {
	case errors.As(err, &httpErr):
		s.logger.WarnContext(ctx, "Product API rejected request", "op", op, "status", httpErr.StatusCode, "message", httpErr.Message)
		return &producterrors.APIError{Op: op, StatusCode: httpErr.StatusCode, Message: httpErr.Message}
	case errors.Is(err, rest.ErrCircuitOpen):
		return fmt.Errorf("%s: %w", op, producterrors.ErrUnavailable)
	default:
		if ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "Product API unreachable", "op", op, "error", err)
		}
		return fmt.Errorf("%s: %w: %w", op, producterrors.ErrFetch, err)
	}
}
