package orquestador

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
)

// Routes arma el router del orquestador. proxy puede ser nil (sin passthrough
// hacia red, útil en tests).
func Routes(svc *Service, board *StatusBoard, notifier *Notifier, proxy http.Handler, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "orquestador"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/saga/alta-cliente", func(w http.ResponseWriter, r *http.Request) {
		var in AltaClienteIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		out, err := svc.AltaCliente(r.Context(), in, key)
		if err != nil {
			writeSagaError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	})

	r.Post("/saga/procesar-pago", func(w http.ResponseWriter, r *http.Request) {
		var in ProcesarPagoIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		if in.Monto <= 0 {
			httpx.WriteFault(w, httpx.Validation("monto debe ser mayor a cero"))
			return
		}
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		out, err := svc.ProcesarPago(r.Context(), in, key)
		if err != nil {
			writeSagaError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	})

	r.Post("/router/status", func(w http.ResponseWriter, r *http.Request) {
		var st RouterStatus
		if !httpx.ReadJSON(w, r, &st) {
			return
		}
		if st.RouterID == "" {
			httpx.WriteFault(w, httpx.Validation("routerId requerido"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, board.Report(st))
	})

	r.Get("/router/status", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"routers": board.List()})
	})

	r.Get("/router/status/{routerID}", func(w http.ResponseWriter, r *http.Request) {
		st := board.Get(chi.URLParam(r, "routerID"))
		if st == nil {
			httpx.WriteFault(w, httpx.NotFound("router sin estatus reportado"))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, st)
	})

	r.Post("/notificaciones", func(w http.ResponseWriter, r *http.Request) {
		var nt Notificacion
		if !httpx.ReadJSON(w, r, &nt) {
			return
		}
		if nt.Destinatario == "" || nt.Mensaje == "" {
			httpx.WriteFault(w, httpx.Validation("destinatario y mensaje requeridos"))
			return
		}
		if nt.Canal != CanalWhatsapp && nt.Canal != CanalPortal && nt.Canal != CanalEmail {
			httpx.WriteFault(w, httpx.Validation("canal desconocido"))
			return
		}
		if err := notifier.Enviar(r.Context(), nt); err != nil {
			httpx.WriteFault(w, httpx.Upstream("no se pudo enviar la notificación", err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "enviado", "canal": nt.Canal})
	})

	if proxy != nil {
		// Passthrough transparente hacia red para las acciones de router.
		// Las rutas estáticas de arriba (status) tienen prioridad.
		r.Handle("/router/*", proxy)
	}

	return r
}

// writeSagaError responde 400 con el detalle del paso que abortó la saga.
func writeSagaError(w http.ResponseWriter, err error) {
	var se *SagaError
	if !errors.As(err, &se) {
		httpx.WriteFault(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"status":     "error",
		"saga":       se.Saga,
		"paso":       se.Paso,
		"compensado": se.Compensado,
		"detalle":    se.Detalle,
	})
}
