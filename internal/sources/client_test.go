package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smill0791/data-integration-platform/internal/config"
)

func pageHandler(t *testing.T, pages [][]Customer) http.HandlerFunc {
	t.Helper()
	total := len(pages)
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/customers", r.URL.Path)
		page := 0
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)

		content := []Customer{}
		if page < total {
			content = pages[page]
		}
		resp := Page[Customer]{
			Content:       content,
			Page:          page,
			Size:          len(content),
			TotalElements: int64(totalItems(pages)),
			TotalPages:    total,
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func totalItems(pages [][]Customer) int {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	return n
}

func testConfig(baseURL string, maxRetries int) config.SourceConfig {
	return config.SourceConfig{
		BaseURL:    baseURL,
		PageSize:   2,
		MaxRetries: maxRetries,
	}
}

func TestFetchAllCustomersPaginates(t *testing.T) {
	t.Parallel()

	pages := [][]Customer{
		{{ID: "C-1", Name: "Ada"}, {ID: "C-2", Name: "Grace"}},
		{{ID: "C-3", Name: "Edsger"}},
	}
	srv := httptest.NewServer(pageHandler(t, pages))
	defer srv.Close()

	client := NewCRMClient(testConfig(srv.URL, 1), srv.Client())
	got, err := client.FetchAllCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "C-1", got[0].ID)
	assert.Equal(t, "C-3", got[2].ID)
}

func TestFetchAllCustomersEmptySource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page[Customer]{Content: []Customer{}, TotalPages: 0})
	}))
	defer srv.Close()

	client := NewCRMClient(testConfig(srv.URL, 1), srv.Client())
	got, err := client.FetchAllCustomers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchAllCustomersStopsOnAbsentContent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			// Claims more pages than it will serve.
			_ = json.NewEncoder(w).Encode(Page[Customer]{
				Content:    []Customer{{ID: "C-1"}},
				TotalPages: 5,
			})
			return
		}
		// Subsequent pages omit content entirely.
		_, _ = w.Write([]byte(`{"page":1,"size":0,"totalElements":1,"totalPages":5}`))
	}))
	defer srv.Close()

	client := NewCRMClient(testConfig(srv.URL, 1), srv.Client())
	got, err := client.FetchAllCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchRetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewERPClient(testConfig(srv.URL, 2), srv.Client())
	_, err := client.FetchAllProducts(context.Background())
	require.Error(t, err)

	var intErr *IntegrationError
	require.ErrorAs(t, err, &intErr)
	assert.Equal(t, "ERP", intErr.Source)
	assert.Equal(t, 0, intErr.Page)
	assert.Equal(t, 2, intErr.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page[Invoice]{
			Content:    []Invoice{{ID: "I-1", InvoiceNumber: "INV-001"}},
			TotalPages: 1,
		})
	}))
	defer srv.Close()

	client := NewAccountingClient(testConfig(srv.URL, 3), srv.Client())
	got, err := client.FetchAllInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INV-001", got[0].InvoiceNumber)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewCRMClient(testConfig(srv.URL, 5), srv.Client())
	_, err := client.FetchAllCustomers(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchSinglePage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "2", r.URL.Query().Get("size"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page[Product]{
			Content:       []Product{{ID: "P-1", SKU: "sku-1", UnitPrice: 9.99}},
			Page:          1,
			Size:          1,
			TotalElements: 3,
			TotalPages:    2,
		})
	}))
	defer srv.Close()

	client := NewERPClient(testConfig(srv.URL, 1), srv.Client())
	got, err := client.FetchProducts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got.Content, 1)
	assert.Equal(t, "P-1", got.Content[0].ID)
	assert.Equal(t, 2, got.TotalPages)
}

func TestLinearBackOffProgression(t *testing.T) {
	t.Parallel()

	b := newLinearBackOff(time.Second)
	assert.Equal(t, 1*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 1*time.Second, b.NextBackOff())
}
