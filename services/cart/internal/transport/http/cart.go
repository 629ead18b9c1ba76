package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/konecta/microshop/services/cart/internal/domain"
)

// CartService is the application surface the transport needs.
type CartService interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID string, productID int64) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// NewRouter wires the cart endpoints, health and metrics.
func NewRouter(svc CartService, logger *log.Logger) http.Handler {
	h := &cartHandlers{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/health", HealthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/cart/{userId}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/items", h.addItem)
		r.Delete("/items/{productId}", h.removeItem)
		r.Delete("/", h.clear)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	return r
}

type cartHandlers struct {
	svc CartService
}

func (h *cartHandlers) get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.GetCart(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *cartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
		return
	}

	cart, err := h.svc.AddItem(r.Context(), chi.URLParam(r, "userId"), domain.CartItem{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Price:     decimal.NewFromFloat(req.Price),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *cartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || productID <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidProduct, domain.ErrInvalidProduct.Error())
		return
	}

	cart, err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "userId"), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *cartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), chi.URLParam(r, "userId")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidUserID:
		writeError(w, http.StatusBadRequest, codeInvalidUserID, err.Error())
	case domain.ErrInvalidProduct:
		writeError(w, http.StatusBadRequest, codeInvalidProduct, err.Error())
	case domain.ErrInvalidQuantity:
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case domain.ErrInvalidPrice:
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type cartItemPayload struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type cartResponse struct {
	UserID string            `json:"userId"`
	Items  []cartItemPayload `json:"items"`
}

func toCartResponse(cart domain.Cart) cartResponse {
	resp := cartResponse{
		UserID: cart.UserID,
		Items:  make([]cartItemPayload, 0, len(cart.Items)),
	}
	for _, it := range cart.Items {
		resp.Items = append(resp.Items, cartItemPayload{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		})
	}
	return resp
}
