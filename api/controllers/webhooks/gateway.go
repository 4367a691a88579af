package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/eventreg-backend/api/responses"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/gateway"
	"github.com/angelmondragon/eventreg-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type GatewayWebhookService interface {
	Ingest(ctx context.Context, payload []byte, signature string) (int, error)
}

// GatewayWebhook hands the raw body to the ingestion pipeline; the pipeline picks the status
// so the gateway retries exactly the deliveries that did not commit.
func GatewayWebhook(svc GatewayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(payload) > maxWebhookBody {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
			return
		}

		status, err := svc.Ingest(ctx, payload, r.Header.Get(gateway.SignatureHeader))
		if err != nil {
			writeStatusError(ctx, logg, w, status, err)
			return
		}
		responses.WriteSuccessStatus(w, status, map[string]bool{"received": true})
	}
}

// writeStatusError keeps the pipeline's status even when the error code maps elsewhere.
func writeStatusError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, err error) {
	typed := pkgerrors.As(err)
	switch {
	case status == http.StatusUnauthorized:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature"))
	case status == http.StatusBadRequest:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
	case typed != nil && pkgerrors.MetadataFor(typed.Code()).HTTPStatus == http.StatusInternalServerError:
		responses.WriteError(ctx, logg, w, err)
	default:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook processing failed"))
	}
}
