package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/konecta/microshop/services/order/internal/app"
	"github.com/konecta/microshop/services/order/internal/domain"
)

// OrderService is the application surface the transport needs.
type OrderService interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, id int64, in app.UpdateOrderInput) (domain.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// NewRouter wires the order CRUD endpoints, health and metrics.
func NewRouter(svc OrderService, logger *log.Logger) http.Handler {
	h := &orderHandlers{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Get("/health", HealthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	return r
}

type orderHandlers struct {
	svc OrderService
}

func (h *orderHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), app.CreateOrderInput{
		UserID: req.UserID,
		Items:  itemInputs(req.Items),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *orderHandlers) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *orderHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *orderHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
		return
	}

	in := app.UpdateOrderInput{Status: domain.OrderStatus(req.Status)}
	if req.Items != nil {
		in.Items = itemInputs(*req.Items)
	}

	order, err := h.svc.UpdateOrder(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *orderHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidID, domain.ErrInvalidID.Error())
		return 0, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrOrderNotFound:
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case domain.ErrNoItems:
		writeError(w, http.StatusBadRequest, codeNoItems, err.Error())
	case domain.ErrInvalidQuantity:
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case domain.ErrInvalidPrice:
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	case domain.ErrInvalidStatus:
		writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
	case domain.ErrIllegalTransition:
		writeError(w, http.StatusConflict, codeIllegalTransition, err.Error())
	case domain.ErrStatusConflict:
		writeError(w, http.StatusConflict, codeStatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type orderItemPayload struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type createOrderRequest struct {
	UserID int64              `json:"userId"`
	Items  []orderItemPayload `json:"items"`
}

type updateOrderRequest struct {
	Status string              `json:"status"`
	Items  *[]orderItemPayload `json:"items"`
}

type orderItemResponse struct {
	OrderItemID int64   `json:"orderItemId"`
	ProductID   int64   `json:"productId"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type orderResponse struct {
	OrderID     int64               `json:"orderId"`
	UserID      int64               `json:"userId"`
	OrderDate   time.Time           `json:"orderDate"`
	Status      string              `json:"status"`
	TotalAmount float64             `json:"totalAmount"`
	Items       []orderItemResponse `json:"items"`
}

func itemInputs(items []orderItemPayload) []app.OrderItemInput {
	out := make([]app.OrderItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, app.OrderItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     decimal.NewFromFloat(it.Price),
		})
	}
	return out
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:     order.ID,
		UserID:      order.UserID,
		OrderDate:   order.OrderDate,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.InexactFloat64(),
		Items:       make([]orderItemResponse, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			OrderItemID: it.ID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			Price:       it.Price.InexactFloat64(),
		})
	}
	return resp
}
