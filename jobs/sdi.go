package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fiscochiaro/fatture/internal/billing"
	"github.com/fiscochiaro/fatture/internal/sdi"
)

// Gateway is the slice of the sdi client the jobs need.
type Gateway interface {
	Submit(ctx context.Context, number string, document []byte) (string, error)
	StatusOf(ctx context.Context, externalID string) (sdi.Status, error)
}

// SdIJobs processes exchange gateway tasks against the invoice engine.
type SdIJobs struct {
	service *billing.Service
	archive billing.Archive
	gateway Gateway
	logger  *slog.Logger
}

// NewSdIJobs builds the job handlers.
func NewSdIJobs(service *billing.Service, archive billing.Archive, gateway Gateway, logger *slog.Logger) *SdIJobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &SdIJobs{service: service, archive: archive, gateway: gateway, logger: logger}
}

// HandleSubmit processes TaskTypeSdISubmit tasks: it loads the invoice and
// its archived PDF, submits the document, then records the gateway
// identifier and advances the invoice to Sent.
func (j *SdIJobs) HandleSubmit(ctx context.Context, t *asynq.Task) error {
	var payload SdISubmitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	inv, err := j.service.GetInvoice(ctx, payload.Number)
	if err != nil {
		if errors.Is(err, billing.ErrInvoiceNotFound) {
			j.logger.Warn("submit task for unknown invoice", slog.String("number", payload.Number))
			return asynq.SkipRetry
		}
		return err
	}
	if inv.ExternalID != "" {
		return nil
	}
	if inv.PDFRef == "" {
		j.logger.Warn("invoice has no archived PDF, skipping submission", slog.String("number", inv.Number))
		return asynq.SkipRetry
	}

	file, err := j.archive.Open(inv.PDFRef)
	if err != nil {
		return err
	}
	document, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		return err
	}

	externalID, err := j.gateway.Submit(ctx, inv.Number, document)
	if err != nil {
		var gatewayErr *sdi.GatewayError
		if errors.As(err, &gatewayErr) && gatewayErr.StatusCode < 500 {
			// The gateway rejected the document itself; retrying the same
			// bytes cannot succeed.
			j.logger.Error("gateway rejected invoice",
				slog.String("number", inv.Number), slog.Any("error", err))
			return asynq.SkipRetry
		}
		return err
	}

	if err := j.service.RecordSubmission(ctx, inv.Number, externalID); err != nil {
		return err
	}
	j.logger.Info("invoice submitted",
		slog.String("number", inv.Number), slog.String("external_id", externalID))
	return nil
}

// HandlePoll processes TaskTypeSdIPoll tasks: every Sent invoice with a
// gateway identifier is checked and advanced to Registered on acceptance.
func (j *SdIJobs) HandlePoll(ctx context.Context, t *asynq.Task) error {
	invoices, err := j.service.ListInvoices(ctx, "")
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		if inv.Status != billing.StatusSent || inv.ExternalID == "" {
			continue
		}
		status, err := j.gateway.StatusOf(ctx, inv.ExternalID)
		if err != nil {
			j.logger.Warn("poll gateway status",
				slog.String("number", inv.Number), slog.Any("error", err))
			continue
		}
		if status != sdi.StatusAccepted {
			continue
		}
		if err := j.service.UpdateStatus(ctx, inv.Number, billing.StatusRegistered); err != nil {
			j.logger.Warn("advance invoice to registered",
				slog.String("number", inv.Number), slog.Any("error", err))
		}
	}
	return nil
}
