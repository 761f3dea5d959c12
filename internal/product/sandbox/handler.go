// Package sandbox is an in-memory implementation of the remote product API.
// It backs local runs of the catalog client and the end-to-end tests.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/abgdnv/productcatalog/internal/platform/web"
	producterrors "github.com/abgdnv/productcatalog/internal/product/errors"
	"github.com/abgdnv/productcatalog/internal/product/model"
)

// ProductAPI defines HTTP handlers for product-related endpoints.
type ProductAPI interface {
	FindByID(w http.ResponseWriter, r *http.Request)
	FindAll(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	DeleteByID(w http.ResponseWriter, r *http.Request)

	HealthCheck(w http.ResponseWriter, r *http.Request)
}

type api struct {
	repository ProductRepository
	logger     *slog.Logger
}

// NewAPI creates a new instance of ProductAPI backed by the given repository.
func NewAPI(repository ProductRepository, logger *slog.Logger) ProductAPI {
	return &api{
		repository: repository,
		logger:     logger.With("component", "sandbox-api"),
	}
}

// FindByID retrieves a product by its ID.
func (a *api) FindByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a.logger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := a.repository.FindByID(id)
	if err != nil {
		a.respondLookupError(w, r, id, err, "retrieve")
		return
	}
	web.RespondJSON(w, a.logger, http.StatusOK, found)
}

// FindAll retrieves a list of all products.
func (a *api) FindAll(w http.ResponseWriter, r *http.Request) {
	list := a.repository.FindAll()
	a.logger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, a.logger, http.StatusOK, list)
}

// Create handles the creation of a new product.
func (a *api) Create(w http.ResponseWriter, r *http.Request) {
	var draft model.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		a.logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, a.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := model.ValidateDraft(draft); err != nil {
		a.respondValidationError(w, r, err)
		return
	}

	created := a.repository.Create(draft)
	a.logger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, a.logger, http.StatusCreated, created)
}

// Update replaces the product identified by the path with the request body.
func (a *api) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var product model.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		a.logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, a.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if product.ID != "" && product.ID != id {
		web.RespondError(w, a.logger, http.StatusBadRequest, fmt.Sprintf("Product ID %s does not match path ID %s", product.ID, id))
		return
	}
	product.ID = id
	if err := model.Validate(product); err != nil {
		a.respondValidationError(w, r, err)
		return
	}

	updated, err := a.repository.Update(product)
	if err != nil {
		a.respondLookupError(w, r, id, err, "update")
		return
	}
	a.logger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, a.logger, http.StatusOK, updated)
}

// DeleteByID deletes a product by its ID.
func (a *api) DeleteByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.repository.DeleteByID(id); err != nil {
		a.respondLookupError(w, r, id, err, "delete")
		return
	}
	a.logger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck is a simple health check endpoint.
func (a *api) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *api) respondLookupError(w http.ResponseWriter, r *http.Request, id string, err error, action string) {
	if errors.Is(err, producterrors.ErrProductNotFound) {
		a.logger.WarnContext(r.Context(), "Product not found", "ID", id)
		web.RespondError(w, a.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
		return
	}
	a.logger.ErrorContext(r.Context(), "Error accessing product", "ID", id, "error", err)
	web.RespondError(w, a.logger, http.StatusInternalServerError, fmt.Sprintf("Failed to %s product with ID %s", action, id))
}

func (a *api) respondValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *producterrors.ValidationError
	if !errors.As(err, &validationErr) {
		web.RespondError(w, a.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	fields := make(map[string]string, len(validationErr.Fields))
	rules := make([]string, 0, len(validationErr.Fields))
	for _, f := range validationErr.Fields {
		fields[f.Field] = "failed on rule: " + f.Rule
		rules = append(rules, f.Field+" failed on rule: "+f.Rule)
	}
	a.logger.WarnContext(r.Context(), "Validation errors occurred", "errors", fields)
	web.RespondJSON(w, a.logger, http.StatusBadRequest, map[string]any{
		"message":           strings.Join(rules, ", "),
		"validation_errors": fields,
	})
}
