package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fiscochiaro/fatture/internal/contacts"
	"github.com/fiscochiaro/fatture/internal/platform/httpx"
)

// SubmitEnqueuer schedules a gateway submission for a saved invoice.
// Implemented by jobs.Enqueuer; nil when the gateway is not configured.
type SubmitEnqueuer interface {
	EnqueueSubmit(ctx context.Context, number string) error
}

// Handler manages invoice endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	archive   Archive
	enqueuer  SubmitEnqueuer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, archive Archive, enqueuer SubmitEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		archive:   archive,
		enqueuer:  enqueuer,
		validator: validator.New(),
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/next-number", h.nextNumber)
	r.Post("/", h.save)
	r.Get("/{number}", h.show)
	r.Get("/{number}/pdf", h.downloadPDF)
	r.Post("/{number}/status", h.updateStatus)
	r.Post("/{number}/submit", h.submit)
	r.Delete("/{number}", h.remove)
}

type lineRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     int             `json:"vat_rate"`
}

type saveRequest struct {
	Counterparty struct {
		Name          string `json:"name" validate:"required"`
		TaxID         string `json:"tax_id"`
		Address       string `json:"address"`
		PostalCode    string `json:"postal_code"`
		City          string `json:"city"`
		Province      string `json:"province"`
		RecipientCode string `json:"recipient_code"`
		PECEmail      string `json:"pec_email" validate:"omitempty,email"`
	} `json:"counterparty"`
	Kind   string        `json:"kind" validate:"omitempty,oneof=CLIENT SUPPLIER"`
	Date   string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status string        `json:"status" validate:"omitempty,oneof=DRAFT CREATED SENT REGISTERED"`
	Lines  []lineRequest `json:"lines" validate:"required,min=1"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=CREATED SENT REGISTERED"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListInvoices(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.service.SuggestNumber(r.Context())
	if err != nil {
		h.logger.Error("suggest number", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}

	lines := make([]LineItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineItem{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			VATRate:     VATRate(l.VATRate),
		})
	}

	invoice, err := h.service.SaveInvoice(r.Context(), SaveInvoiceInput{
		Counterparty: Counterparty{
			Name:          req.Counterparty.Name,
			TaxID:         req.Counterparty.TaxID,
			Address:       req.Counterparty.Address,
			PostalCode:    req.Counterparty.PostalCode,
			City:          req.Counterparty.City,
			Province:      req.Counterparty.Province,
			RecipientCode: req.Counterparty.RecipientCode,
			PECEmail:      req.Counterparty.PECEmail,
		},
		Kind:   contacts.Kind(req.Kind),
		Lines:  lines,
		Date:   date,
		Status: InvoiceStatus(req.Status),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCounterparty),
			errors.Is(err, ErrEmptyInvoice),
			errors.Is(err, ErrInvalidLineItem),
			errors.Is(err, ErrInvalidStatus):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrDuplicateNumber):
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
		default:
			h.logger.Error("save invoice", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.service.GetInvoice(r.Context(), h.number(r))
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) downloadPDF(w http.ResponseWriter, r *http.Request) {
	number := h.number(r)
	invoice, err := h.service.GetInvoice(r.Context(), number)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	if invoice.PDFRef == "" || h.archive == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no PDF archived for this invoice")
		return
	}
	file, err := h.archive.Open(invoice.PDFRef)
	if err != nil {
		h.logger.Error("open archived PDF", slog.Any("error", err), slog.String("number", number))
		httpx.Problem(w, http.StatusNotFound, "Not Found", "archived PDF no longer available")
		return
	}
	defer func() {
		_ = file.Close()
	}()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+invoice.Number+`.pdf"`)
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn("stream PDF", slog.Any("error", err), slog.String("number", number))
	}
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	number := h.number(r)
	if err := h.service.UpdateStatus(r.Context(), number, InvoiceStatus(req.Status)); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
			return
		}
		h.respondLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Gateway Disabled", "exchange gateway is not configured")
		return
	}
	number := h.number(r)
	invoice, err := h.service.GetInvoice(r.Context(), number)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	if invoice.ExternalID != "" {
		httpx.Problem(w, http.StatusConflict, "Already Submitted", "invoice already accepted by the gateway")
		return
	}
	if err := h.enqueuer.EnqueueSubmit(r.Context(), number); err != nil {
		h.logger.Error("enqueue submission", slog.Any("error", err), slog.String("number", number))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not schedule submission")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"number": number, "state": "queued"})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteInvoice(r.Context(), h.number(r)); err != nil {
		h.respondLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) number(r *http.Request) string {
	number, err := url.PathUnescape(chi.URLParam(r, "number"))
	if err != nil {
		return chi.URLParam(r, "number")
	}
	return number
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvoiceNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invoice not found")
		return
	}
	h.logger.Error("invoice lookup", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
