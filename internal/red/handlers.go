package red

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
)

type accionIn struct {
	ClienteID int64 `json:"cliente_id"`
}

type pingIn struct {
	Host      string `json:"host"`
	ClienteID *int64 `json:"cliente_id,omitempty"`
}

// Routes arma el router del servicio red.
func Routes(svc *Service, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "red", "mode": svc.mode})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/router/{accion}", func(w http.ResponseWriter, r *http.Request) {
		accion := chi.URLParam(r, "accion")
		if !EsAccion(accion) {
			httpx.WriteFault(w, httpx.NotFound("acción desconocida"))
			return
		}
		var in accionIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		if in.ClienteID < 1 {
			httpx.WriteFault(w, httpx.Validation("cliente_id requerido"))
			return
		}
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		res, err := svc.Action(r.Context(), accion, in.ClienteID, key)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if res.Replay {
			w.Header().Set("X-Idempotent-Replay", "true")
		}
		httpx.WriteJSON(w, http.StatusOK, res)
	})

	r.Get("/router/estado/{clienteID}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "clienteID"), 10, 64)
		if err != nil || id < 1 {
			httpx.WriteFault(w, httpx.Validation("cliente_id inválido"))
			return
		}
		est, err := svc.Estado(r.Context(), id)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if est == nil {
			httpx.WriteFault(w, httpx.NotFound("cliente sin estado de red"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, est)
	})

	r.Post("/diagnostico/ping", func(w http.ResponseWriter, r *http.Request) {
		var in pingIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		if strings.TrimSpace(in.Host) == "" {
			httpx.WriteFault(w, httpx.Validation("host requerido"))
			return
		}
		res, err := svc.Ping(r.Context(), in.Host, in.ClienteID)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, res)
	})

	r.Post("/diagnostico/traceroute", func(w http.ResponseWriter, r *http.Request) {
		var in pingIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		if strings.TrimSpace(in.Host) == "" {
			httpx.WriteFault(w, httpx.Validation("host requerido"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, svc.Traceroute(in.Host))
	})

	return r
}
