package contacts

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fiscochiaro/fatture/internal/platform/httpx"
)

// Handler manages directory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{name}", h.show)
	r.Post("/", h.upsert)
	r.Delete("/{name}", h.remove)
}

type upsertRequest struct {
	Name          string `json:"name" validate:"required"`
	TaxID         string `json:"tax_id"`
	Address       string `json:"address"`
	PostalCode    string `json:"postal_code"`
	City          string `json:"city"`
	Province      string `json:"province"`
	RecipientCode string `json:"recipient_code"`
	PECEmail      string `json:"pec_email" validate:"omitempty,email"`
	Kind          string `json:"kind" validate:"omitempty,oneof=CLIENT SUPPLIER"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	entries, err := h.service.List(r.Context(), kind)
	if err != nil {
		h.logger.Error("list contacts", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contacts": entries})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid contact name")
		return
	}
	contact, err := h.service.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "contact not found")
			return
		}
		h.logger.Error("get contact", slog.Any("error", err), slog.String("name", name))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	contact, err := h.service.Upsert(r.Context(), Contact{
		Name:          req.Name,
		TaxID:         req.TaxID,
		Address:       req.Address,
		PostalCode:    req.PostalCode,
		City:          req.City,
		Province:      req.Province,
		RecipientCode: req.RecipientCode,
		PECEmail:      req.PECEmail,
		Kind:          Kind(req.Kind),
	})
	if err != nil {
		h.logger.Error("upsert contact", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid contact name")
		return
	}
	if err := h.service.Delete(r.Context(), name); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "contact not found")
			return
		}
		h.logger.Error("delete contact", slog.Any("error", err), slog.String("name", name))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
