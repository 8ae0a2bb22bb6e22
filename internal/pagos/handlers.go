package pagos

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
	"github.com/dropDatabas3/wispcore/internal/idempotency"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

type procesarIn struct {
	ClienteID  int64   `json:"clienteId"`
	Monto      float64 `json:"monto"`
	Metodo     string  `json:"metodo"`
	Referencia string  `json:"referencia,omitempty"`
}

type webhookIn struct {
	EventID    string  `json:"eventId"`
	Tipo       string  `json:"tipo"`
	Referencia string  `json:"referencia"`
	Monto      float64 `json:"monto"`
}

// Routes arma el router del servicio pagos. El cobro pasa por el ledger con
// scope "pago". webhookSecret firma los eventos del agregador; vacío
// desactiva la verificación (solo entornos locales).
func Routes(store Store, ledger *idempotency.Ledger, webhookSecret string, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "pagos"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/pagos/procesar", func(w http.ResponseWriter, r *http.Request) {
		var in procesarIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		if in.Monto <= 0 {
			httpx.WriteFault(w, httpx.Validation("monto debe ser mayor a cero"))
			return
		}
		if in.Metodo == "" {
			in.Metodo = "tarjeta"
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		resp, replay, err := ledger.Execute(r.Context(), key, "pago", func(ctx context.Context) ([]byte, error) {
			ref := in.Referencia
			if ref == "" {
				ref = uuid.NewString()
			}
			p := &Pago{Referencia: ref, Metodo: in.Metodo, Monto: in.Monto, Estatus: "confirmado"}
			if err := store.CreateConfirmado(ctx, p); err != nil {
				return nil, err
			}
			logger.From(ctx).Info("pago confirmado",
				logger.ClienteID(in.ClienteID),
				logger.Referencia(ref),
			)
			return json.Marshal(p)
		})
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if replay {
			w.Header().Set("X-Idempotent-Replay", "true")
			logger.From(r.Context()).Info("pago replay", logger.Replay(true))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	})

	r.Get("/pagos/{referencia}", func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "referencia")
		p, err := store.Get(r.Context(), ref)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if p == nil {
			httpx.WriteFault(w, httpx.NotFound("pago no encontrado"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, p)
	})

	r.Post("/pagos/webhook", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "no se pudo leer el cuerpo")
			return
		}
		if webhookSecret != "" && !validSignature(body, r.Header.Get("X-Webhook-Signature"), webhookSecret) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_signature", "firma inválida")
			return
		}
		var ev webhookIn
		if err := json.Unmarshal(body, &ev); err != nil || ev.EventID == "" {
			httpx.WriteFault(w, httpx.Validation("evento inválido: falta eventId"))
			return
		}
		fresh, err := store.LogWebhook(r.Context(), ev.EventID, body)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if !fresh {
			// Evento ya procesado: respondemos ok para que el agregador
			// deje de reintentar, sin efectos adicionales.
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "replay": true})
			return
		}
		logger.From(r.Context()).Info("webhook de pago recibido",
			logger.Referencia(ev.Referencia),
			logger.Op(ev.Tipo),
		)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "replay": false})
	})

	return r
}

// validSignature compara HMAC-SHA256 hex del cuerpo contra el header.
func validSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
