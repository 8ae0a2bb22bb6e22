package instalaciones

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
)

func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func parseLimit(r *http.Request, def, max int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= max {
			return n
		}
	}
	return def
}

// Routes arma el router del servicio instalaciones.
func Routes(svc *Service, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "instalaciones"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/instalaciones/agendar", func(w http.ResponseWriter, r *http.Request) {
		var in AgendarIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		inst, err := svc.Agendar(r.Context(), in)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, inst)
	})

	r.Put("/instalaciones/despachar/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			httpx.WriteFault(w, httpx.Validation("id inválido"))
			return
		}
		inst, err := svc.Despachar(r.Context(), id)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, inst)
	})

	r.Put("/instalaciones/cerrar/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			httpx.WriteFault(w, httpx.Validation("id inválido"))
			return
		}
		var in CerrarIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		inst, err := svc.Cerrar(r.Context(), id, in)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, inst)
	})

	r.Get("/instalaciones/agenda", func(w http.ResponseWriter, r *http.Request) {
		zona := r.URL.Query().Get("zona")
		estado := r.URL.Query().Get("estado")
		out, err := svc.Agenda(r.Context(), zona, estado, parseLimit(r, 25, 200))
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if out == nil {
			out = []*Instalacion{}
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	})

	r.Get("/instalaciones/cliente/{clienteID}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "clienteID")
		if !ok {
			httpx.WriteFault(w, httpx.Validation("clienteId inválido"))
			return
		}
		out, err := svc.PorCliente(r.Context(), id, parseLimit(r, 10, 100))
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		if out == nil {
			out = []*Instalacion{}
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	})

	r.Get("/instalaciones/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			httpx.WriteFault(w, httpx.Validation("id inválido"))
			return
		}
		inst, err := svc.Get(r.Context(), id)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, inst)
	})

	r.Post("/tickets/instalacion", func(w http.ResponseWriter, r *http.Request) {
		var in TicketIn
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		inst, tecnico, err := svc.CrearTicket(r.Context(), in)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"id":              inst.ID,
			"clienteId":       inst.ClienteID,
			"estado":          inst.Estado,
			"ventana":         inst.Ventana,
			"zona":            inst.Zona,
			"notas":           inst.Notas,
			"evidencias":      inst.Evidencias,
			"creadoEn":        inst.CreadoEn,
			"tecnicoAsignado": tecnico,
		})
	})

	r.Patch("/tickets/{id}/progreso", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			httpx.WriteFault(w, httpx.Validation("id inválido"))
			return
		}
		var in struct {
			Estatus string `json:"estatus"`
		}
		if !httpx.ReadJSON(w, r, &in) {
			return
		}
		inst, err := svc.Progreso(r.Context(), id, in.Estatus)
		if err != nil {
			httpx.WriteFault(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, inst)
	})

	return r
}
