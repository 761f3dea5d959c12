package view

import (
	"bytes"
	"context"
	"testing"

	"github.com/abgdnv/productcatalog/internal/product/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ProductForm_Mount_Edit(t *testing.T) {
	testCases := []struct {
		name            string
		cached          bool
		loaded          bool
		expectedOK      bool
		expectedCalls   []string
		expectedNotices []string
		expectedValues  Values
	}{
		{
			name:           "prefilled from the collection",
			cached:         true,
			expectedOK:     true,
			expectedValues: Values{Name: "Mug", Description: "Blue", Price: "4.5"},
		},
		{
			name:           "loaded when not in the collection",
			loaded:         true,
			expectedOK:     true,
			expectedCalls:  []string{"loadOne 7"},
			expectedValues: Values{Name: "Mug", Description: "Blue", Price: "4.5"},
		},
		{
			name:            "not found navigates to the list",
			expectedOK:      false,
			expectedCalls:   []string{"loadOne 7"},
			expectedNotices: []string{"Product with ID 7 not found."},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			mug := model.Product{ID: "7", Name: "Mug", Description: "Blue", Price: 4.5}
			catalog := &mockCatalog{
				find: func(string) (model.Product, bool) { return mug, tc.cached },
				loadOne: func(context.Context, string) (model.Product, bool) {
					return mug, tc.loaded
				},
			}
			nav := &mockNavigator{}
			form := NewEditForm(catalog, nav, &bytes.Buffer{}, "7")

			// when
			ok := form.Mount(context.Background())

			// then
			assert.Equal(t, tc.expectedOK, ok)
			assert.Equal(t, tc.expectedCalls, nilIfEmpty(catalog.Calls()))
			assert.Equal(t, tc.expectedNotices, nav.notices)
			assert.Equal(t, tc.expectedValues, form.Values())
		})
	}
}

func Test_ProductForm_Mount_Create(t *testing.T) {
	catalog := &mockCatalog{}
	form := NewCreateForm(catalog, &mockNavigator{}, &bytes.Buffer{})

	assert.True(t, form.Mount(context.Background()))
	assert.False(t, form.Editing())
	assert.Empty(t, catalog.Calls())
	assert.Equal(t, Values{}, form.Values())
}

func Test_ProductForm_Unmount_NoNavigation(t *testing.T) {
	// given
	var form *ProductForm
	catalog := &mockCatalog{
		loadOne: func(ctx context.Context, _ string) (model.Product, bool) {
			form.Unmount()
			<-ctx.Done()
			return model.Product{}, false
		},
	}
	nav := &mockNavigator{}
	form = NewEditForm(catalog, nav, &bytes.Buffer{}, "7")

	// when
	ok := form.Mount(context.Background())

	// then
	assert.False(t, ok)
	assert.Empty(t, nav.notices)
	assert.False(t, form.Submit(context.Background()))
}

func Test_ProductForm_Set(t *testing.T) {
	form := NewCreateForm(&mockCatalog{}, &mockNavigator{}, &bytes.Buffer{})

	require.NoError(t, form.Set(FieldName, "Cup"))
	require.NoError(t, form.Set(FieldDescription, "Tall"))
	require.NoError(t, form.Set(FieldPrice, "3"))
	assert.ErrorIs(t, form.Set("colour", "red"), ErrUnknownField)
	assert.ErrorIs(t, form.Set(FieldPrice, "three"), ErrInvalidPrice)

	assert.Equal(t, Values{Name: "Cup", Description: "Tall", Price: "three"}, form.Values())
}

func Test_ProductForm_Submit_Create(t *testing.T) {
	// given
	var sent model.Draft
	catalog := &mockCatalog{
		create: func(_ context.Context, draft model.Draft) (model.Product, bool) {
			sent = draft
			return draft.WithID("7"), true
		},
	}
	nav := &mockNavigator{}
	form := NewCreateForm(catalog, nav, &bytes.Buffer{})
	require.NoError(t, form.Set(FieldName, " Cup "))
	require.NoError(t, form.Set(FieldPrice, "3"))

	// when
	ok := form.Submit(context.Background())

	// then
	assert.True(t, ok)
	assert.Equal(t, model.Draft{Name: "Cup", Price: 3}, sent)
	assert.Equal(t, []string{"Product added."}, nav.notices)
}

func Test_ProductForm_Submit_Edit(t *testing.T) {
	// given
	var sentID string
	var sent model.Product
	catalog := &mockCatalog{
		find: func(string) (model.Product, bool) {
			return model.Product{ID: "7", Name: "Cup", Price: 3}, true
		},
		update: func(_ context.Context, id string, p model.Product) (model.Product, bool) {
			sentID, sent = id, p
			return p, true
		},
	}
	nav := &mockNavigator{}
	form := NewEditForm(catalog, nav, &bytes.Buffer{}, "7")
	require.True(t, form.Mount(context.Background()))
	require.NoError(t, form.Set(FieldName, "Mug"))
	require.NoError(t, form.Set(FieldPrice, "4"))

	// when
	ok := form.Submit(context.Background())

	// then
	assert.True(t, ok)
	assert.Equal(t, "7", sentID)
	assert.Equal(t, model.Product{ID: "7", Name: "Mug", Price: 4}, sent)
	assert.Equal(t, []string{"Product updated."}, nav.notices)
}

func Test_ProductForm_Submit_Failure(t *testing.T) {
	testCases := []struct {
		name          string
		price         string
		storeError    string
		expectedCalls []string
		expectedOut   string
	}{
		{
			name:          "server message is shown",
			price:         "3",
			storeError:    "Product already exists",
			expectedCalls: []string{"create"},
			expectedOut:   "Error: Product already exists\n",
		},
		{
			name:          "generic message",
			price:         "3",
			expectedCalls: []string{"create"},
			expectedOut:   "Error: Failed to save product.\n",
		},
		{
			name:        "price is not sent when not a number",
			price:       "abc",
			expectedOut: "Error: price must be a number: \"abc\"\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			catalog := &mockCatalog{}
			catalog.create = func(context.Context, model.Draft) (model.Product, bool) {
				catalog.setError(tc.storeError)
				return model.Product{}, false
			}
			nav := &mockNavigator{}
			out := &bytes.Buffer{}
			form := NewCreateForm(catalog, nav, out)
			require.NoError(t, form.Set(FieldName, "Cup"))
			_ = form.Set(FieldPrice, tc.price)

			// when
			ok := form.Submit(context.Background())

			// then
			assert.False(t, ok)
			assert.Empty(t, nav.notices)
			assert.Equal(t, tc.expectedCalls, nilIfEmpty(catalog.Calls()))
			assert.Equal(t, tc.expectedOut, out.String())
			assert.Equal(t, Values{Name: "Cup", Price: tc.price}, form.Values(), "entered values are kept")
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
