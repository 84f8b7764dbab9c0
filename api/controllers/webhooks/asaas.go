package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	asaaswebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultMaxBody int64 = 1 << 20

type AsaasWebhookService interface {
	HandleEvent(ctx context.Context, event *asaas.Event) (string, error)
}

type asaasWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// AsaasWebhook authenticates, deduplicates and applies Asaas notifications.
// The raw body is verified before anything decodes it.
func AsaasWebhook(svc AsaasWebhookService, guard asaasWebhookGuard, cfg config.AsaasConfig, maxBytes int64, recorder *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBody
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				recorder.Inc("", metrics.WebhookOutcomeRejected)
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !asaas.VerifyToken(r.Header.Get(asaas.HeaderWebhookToken), cfg.WebhookToken) {
			recorder.Inc("", metrics.WebhookOutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
			return
		}
		if cfg.WebhookSigningSecret != "" && !asaas.VerifySignature(payload, r.Header.Get(asaas.HeaderWebhookSignature), cfg.WebhookSigningSecret) {
			recorder.Inc("", metrics.WebhookOutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event asaas.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			recorder.Inc("", metrics.WebhookOutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		if err := asaaswebhook.Validate(&event); err != nil {
			recorder.Inc(event.Event, metrics.WebhookOutcomeRejected)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		key := asaaswebhook.EventKey(&event)
		alreadyProcessed, err := guard.CheckAndMark(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			recorder.Inc(event.Event, metrics.WebhookOutcomeDuplicate)
			if logg != nil {
				logg.Info(logg.WithField(ctx, "provider_event_key", key), "duplicate webhook ignored")
			}
			responses.WriteSuccess(w, map[string]string{"outcome": metrics.WebhookOutcomeDuplicate})
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			_ = guard.Delete(ctx, key)
			recorder.Inc(event.Event, outcome)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		recorder.Inc(event.Event, outcome)
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"provider_event_key": key,
				"outcome":            outcome,
			}), "webhook processed")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": outcome})
	}
}
