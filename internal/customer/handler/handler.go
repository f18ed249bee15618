package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cashkiosk/internal/customer/models"
	dErrors "cashkiosk/pkg/domain-errors"
	"cashkiosk/pkg/platform/httputil"
	"cashkiosk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the customer surface the handlers expose.
type Service interface {
	Add(ctx context.Context, in models.NewCustomer) (*models.Customer, error)
	Get(ctx context.Context, phone string) (*models.Customer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Update(ctx context.Context, id uuid.UUID, data map[string]any, actor string) (*models.Customer, error)
	Batch(ctx context.Context) ([]*models.Customer, error)
}

// Handler wires customer endpoints to the customer service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts customer endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.handleAdd)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGetByID)
		r.Patch("/{id}", h.handleUpdate)
	})
}

type customerList struct {
	Customers []*models.Customer `json:"customers"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, err := httputil.DecodeJSON[models.NewCustomer](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Add(ctx, in)
	if err != nil {
		h.logFailure(ctx, "add customer failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

// handleList serves a single customer when ?phone= is given and the most
// recent customers otherwise.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if phone := r.URL.Query().Get("phone"); phone != "" {
		c, err := h.service.Get(ctx, phone)
		if err != nil {
			h.logFailure(ctx, "get customer by phone failed", err)
			httputil.WriteError(w, err)
			return
		}
		if c == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "customer not found"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, c)
		return
	}

	customers, err := h.service.Batch(ctx)
	if err != nil {
		h.logFailure(ctx, "list customers failed", err)
		httputil.WriteError(w, err)
		return
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	httputil.WriteJSON(w, http.StatusOK, customerList{Customers: customers})
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetByID(ctx, id)
	if err != nil {
		h.logFailure(ctx, "get customer failed", err)
		httputil.WriteError(w, err)
		return
	}
	if c == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "customer not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	data, err := httputil.DecodeJSON[map[string]any](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Update(ctx, id, data, requestcontext.ActorID(ctx))
	if err != nil {
		h.logFailure(ctx, "update customer failed", err)
		httputil.WriteError(w, err)
		return
	}
	if c == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "customer not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid customer id"))
		return uuid.Nil, false
	}
	return id, true
}

// logFailure logs server-side failures; client errors are not logged.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
