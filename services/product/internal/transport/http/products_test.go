package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/konecta/microshop/services/product/internal/app"
	"github.com/konecta/microshop/services/product/internal/domain"
)

type fakeProductService struct {
	products map[int64]domain.Product
	nextID   int64
}

func newFakeProductService() *fakeProductService {
	return &fakeProductService{products: make(map[int64]domain.Product), nextID: 1}
}

func (f *fakeProductService) CreateProduct(ctx context.Context, in app.ProductInput) (domain.Product, error) {
	p := domain.Product{
		ID:          f.nextID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	f.nextID++
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeProductService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeProductService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductService) UpdateProduct(ctx context.Context, id int64, in app.ProductInput) (domain.Product, error) {
	if _, ok := f.products[id]; !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p := domain.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	f.products[id] = p
	return p, nil
}

func (f *fakeProductService) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateProductEndpoint(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeProductService(), nil)
	rec := doRequest(t, router, http.MethodPost, "/api/products",
		`{"name":"Keyboard","description":"Mechanical","price":49.9,"stock":10}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["productId"] == nil || resp["name"] != "Keyboard" {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestCreateProductValidation(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeProductService(), nil)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"missing name", `{"price":1,"stock":1}`, codeNameRequired},
		{"negative price", `{"name":"x","price":-1,"stock":1}`, codeInvalidPrice},
		{"negative stock", `{"name":"x","price":1,"stock":-1}`, codeInvalidStock},
		{"unknown field", `{"name":"x","price":1,"color":"red"}`, codeInvalidBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/products", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Code != tc.code {
				t.Errorf("code = %q, want %q", resp.Code, tc.code)
			}
		})
	}
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeProductService(), nil)
	rec := doRequest(t, router, http.MethodGet, "/api/products/404", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != codeProductNotFound {
		t.Errorf("code = %q, want %q", resp.Code, codeProductNotFound)
	}
}

func TestGetProductBadID(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeProductService(), nil)
	rec := doRequest(t, router, http.MethodGet, "/api/products/abc", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateProductEndpoint(t *testing.T) {
	t.Parallel()

	svc := newFakeProductService()
	router := NewRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/products",
		`{"name":"Mouse","price":19.9,"stock":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/products/1",
		`{"name":"Mouse v2","price":24.9,"stock":8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d; body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["name"] != "Mouse v2" {
		t.Errorf("name = %v, want Mouse v2", resp["name"])
	}
}

func TestDeleteProductEndpoint(t *testing.T) {
	t.Parallel()

	svc := newFakeProductService()
	router := NewRouter(svc, nil)

	doRequest(t, router, http.MethodPost, "/api/products", `{"name":"Cable","price":5,"stock":1}`)

	rec := doRequest(t, router, http.MethodDelete, "/api/products/1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/api/products/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", rec.Code)
	}
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeProductService(), nil)
	rec := doRequest(t, router, http.MethodGet, "/nope", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	router := NewRouter(newFakeProductService(), nil)
	rec := doRequest(t, router, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
