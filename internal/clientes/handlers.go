package clientes

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
	"github.com/dropDatabas3/wispcore/internal/idempotency"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

type crearIn struct {
	Nombre   string `json:"nombre"`
	RFC      string `json:"rfc"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Zona     string `json:"zona"`
}

// Routes arma el router del servicio clientes.
// El alta pasa por el ledger con scope "cliente"; los replays llevan el
// header X-Idempotent-Replay igual que el servicio original.
func Routes(store Store, ledger *idempotency.Ledger, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "clientes"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/clientes", func(w http.ResponseWriter, r *http.Request) {
		var in crearIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		// Validación fail-fast antes de cualquier mutación.
		if !ValidRFC(in.RFC) {
			httpx.WriteFault(w, httpx.Validation("RFC inválido"))
			return
		}
		if !ValidTelefono(in.Telefono) {
			httpx.WriteFault(w, httpx.Validation("teléfono inválido"))
			return
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		var existed bool
		resp, replay, err := ledger.Execute(r.Context(), key, "cliente", func(ctx context.Context) ([]byte, error) {
			out, ex, err := store.Create(ctx, &Cliente{
				Nombre:   in.Nombre,
				RFC:      in.RFC,
				Email:    in.Email,
				Telefono: in.Telefono,
				Zona:     in.Zona,
			})
			if err != nil {
				return nil, err
			}
			existed = ex
			return json.Marshal(out)
		})
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		// RFC duplicado también cuenta como replay (idempotencia por RFC).
		if replay || existed {
			w.Header().Set("X-Idempotent-Replay", "true")
		}
		if replay {
			logger.From(r.Context()).Info("alta de cliente replay", logger.Replay(true))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	})

	r.Post("/clientes/{id}/inactivar", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id < 1 {
			httpx.WriteFault(w, httpx.Validation("id inválido"))
			return
		}
		cli, err := store.SetEstatus(r.Context(), id, EstatusInactivo)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if cli == nil {
			httpx.WriteFault(w, httpx.NotFound("cliente no encontrado"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": cli.ID, "estatus": cli.Estatus})
	})

	r.Get("/clientes/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id < 1 {
			httpx.WriteFault(w, httpx.Validation("id inválido"))
			return
		}
		cli, err := store.Get(r.Context(), id)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if cli == nil {
			httpx.WriteFault(w, httpx.NotFound("cliente no encontrado"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, cli)
	})

	return r
}
