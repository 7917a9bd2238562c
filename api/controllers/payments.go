package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/acavero/shopline-backend/api/responses"
	"github.com/acavero/shopline-backend/internal/payments"
	pkgerrors "github.com/acavero/shopline-backend/pkg/errors"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/redis"
)

// SignatureHeader carries the gateway's HMAC over the raw request body.
const SignatureHeader = "X-Shopline-Signature"

const maxCallbackBytes = 1 << 20

type paymentCallbackBody struct {
	EventID          string `json:"event_id"`
	Event            string `json:"event"`
	OrderID          string `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
}

// PaymentCallback receives gateway webhook deliveries. The idempotency guard
// fences redeliveries by event id; the mark is cleared again when settlement
// fails so the gateway's retry can get through.
func PaymentCallback(svc payments.Service, guard *redis.IdempotencyGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable callback body"))
			return
		}

		var payload paymentCallbackBody
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback body"))
			return
		}
		if payload.Event == "" || payload.GatewayOrderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "callback missing event or gateway_order_id"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event":    payload.Event,
				"event_id": payload.EventID,
			})
		}

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, payload.EventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check failed"))
				return
			}
			if seen {
				if logg != nil {
					logg.Info(ctx, "callback.duplicate")
				}
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		err = svc.VerifyCallback(ctx, payments.CallbackInput{
			Event:            payload.Event,
			OrderID:          payload.OrderID,
			GatewayOrderID:   payload.GatewayOrderID,
			GatewayPaymentID: payload.GatewayPaymentID,
			Payload:          body,
			Signature:        r.Header.Get(SignatureHeader),
		})
		if err != nil {
			if guard != nil {
				_ = guard.Delete(ctx, payload.EventID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
