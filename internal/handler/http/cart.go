package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/fragment"
	"github.com/cswank/store/internal/service"
	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/httputil"
	"github.com/cswank/store/pkg/middleware"
	"github.com/cswank/store/pkg/validator"
)

const maxBodyBytes = 1 << 20

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// UpdateLineRequest is the JSON request body for changing a line's quantity.
type UpdateLineRequest struct {
	Delta int `json:"delta" validate:"required,min=-10000,max=10000"`
}

// CheckoutRequest is the optional JSON body of a checkout.
type CheckoutRequest struct {
	DiscountCode string `json:"discount_code" validate:"max=100"`
}

// ConfirmDeleteRequest names the admin resource to delete.
type ConfirmDeleteRequest struct {
	Resource string `json:"resource" validate:"required,max=500"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.GetCart(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, sum)
}

// SaveCart handles PUT /api/v1/cart. The body is a whole cart document in
// the storage format.
func (h *CartHandler) SaveCart(w http.ResponseWriter, r *http.Request) {
	doc := domain.NewDocument()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(doc); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body must be a cart document"))
		return
	}
	for _, item := range doc.Items() {
		if item.Count < 0 {
			h.writeError(w, r, apperrors.InvalidInput("count of "+item.Key+" must not be negative"))
			return
		}
	}

	sum, err := h.service.SaveDocument(r.Context(), middleware.SessionFromContext(r.Context()), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, sum)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ClearCart(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// CommitProduct handles POST /api/v1/cart/product
func (h *CartHandler) CommitProduct(w http.ResponseWriter, r *http.Request) {
	var req service.CommitProductInput
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sum, err := h.service.CommitProduct(r.Context(), middleware.SessionFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, sum)
}

// CommitBulk handles POST /api/v1/cart/wholesale
func (h *CartHandler) CommitBulk(w http.ResponseWriter, r *http.Request) {
	var req service.CommitBulkInput
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sum, err := h.service.CommitBulk(r.Context(), middleware.SessionFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, sum)
}

// UpdateLine handles PATCH /api/v1/cart/items/{key}
func (h *CartHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req UpdateLineRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.UpdateLine(r.Context(), middleware.SessionFromContext(r.Context()), chi.URLParam(r, "key"), req.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// RemoveLine handles DELETE /api/v1/cart/items/{key}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RemoveLine(r.Context(), middleware.SessionFromContext(r.Context()), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// RenderCart handles GET /api/v1/cart/view
func (h *CartHandler) RenderCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RenderCart(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, snap)
}

// Checkout handles POST /api/v1/cart/checkout. The body is optional.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := h.decodeOptional(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Checkout(r.Context(), middleware.SessionFromContext(r.Context()), req.DiscountCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// ConfirmDelete handles POST /api/v1/admin/confirm-delete
func (h *CartHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	var req ConfirmDeleteRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	effects, err := h.service.ConfirmDelete(r.Context(), req.Resource)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]any{"navigate": effects})
}

// LineItem handles GET /cart/lineitem/{category}/{subcategory}/{key}
func (h *CartHandler) LineItem(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query().Get("quantity")
	if qs == "" {
		h.writeError(w, r, apperrors.InvalidInput("quantity is required"))
		return
	}
	quantity, err := strconv.Atoi(qs)
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("quantity must be a whole number"))
		return
	}

	req := fragment.Request{
		Category:    chi.URLParam(r, "category"),
		Subcategory: chi.URLParam(r, "subcategory"),
		Key:         chi.URLParam(r, "key"),
		Quantity:    quantity,
	}

	var buf bytes.Buffer
	if err := h.service.RenderFragment(r.Context(), &buf, req); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// --- helpers ---

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return httputil.Decode(r, dst)
}

// decodeOptional decodes and validates a body that may be absent.
func (h *CartHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperrors.InvalidInput("malformed request body")
	}
	return validator.Validate(dst)
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}
