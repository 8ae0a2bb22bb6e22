package instalaciones

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
	"github.com/dropDatabas3/wispcore/internal/retry"
)

// provisionerStub falla un número fijo de veces antes de tener éxito.
type provisionerStub struct {
	failures int
	calls    int
}

func (p *provisionerStub) ProvisionarPPPoE(context.Context, int64) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("router no responde")
	}
	return nil
}

func fastRetrier(prov Provisioner) *Retrier {
	return &Retrier{
		prov: prov,
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Exponential(time.Millisecond),
		},
	}
}

func newTestService(prov Provisioner) *Service {
	return NewService(NewMemStore(), fastRetrier(prov), nil, "", "Norte:tec-norte-01,Sur:tec-sur-01")
}

func agendada(t *testing.T, svc *Service) *Instalacion {
	t.Helper()
	inst, err := svc.Agendar(context.Background(), AgendarIn{
		ClienteID: 1, Ventana: "9-12", Zona: "Norte",
	})
	require.NoError(t, err)
	require.Equal(t, EstadoProgramada, inst.Estado)
	return inst
}

func TestDespachar_IdempotenteYConflicto(t *testing.T) {
	svc := newTestService(&provisionerStub{})
	ctx := context.Background()
	inst := agendada(t, svc)

	// Programada → EnRuta
	out, err := svc.Despachar(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, EstadoEnRuta, out.Estado)

	// Repetido: no-op, mismo estado, sin error
	out, err = svc.Despachar(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, EstadoEnRuta, out.Estado)

	// Sobre Completada: devuelve el snapshot intacto
	_, err = svc.store.SetEstado(ctx, inst.ID, EstadoCompletada)
	require.NoError(t, err)
	out, err = svc.Despachar(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, EstadoCompletada, out.Estado)

	// Sobre NoCompletada: Conflict
	_, err = svc.store.SetEstado(ctx, inst.ID, EstadoNoCompletada)
	require.NoError(t, err)
	_, err = svc.Despachar(ctx, inst.ID)
	requireFaultStatus(t, err, http.StatusConflict)
}

func TestCerrar_SinEvidenciasSiempreValidacion(t *testing.T) {
	svc := newTestService(&provisionerStub{})
	ctx := context.Background()
	inst := agendada(t, svc)

	for _, estado := range []string{EstadoProgramada, EstadoEnRuta, EstadoNoCompletada} {
		_, err := svc.store.SetEstado(ctx, inst.ID, estado)
		require.NoError(t, err)
		_, err = svc.Cerrar(ctx, inst.ID, CerrarIn{Evidencias: nil})
		requireFaultStatus(t, err, http.StatusUnprocessableEntity)
	}
}

func TestCerrar_ExitoTrasReintentos(t *testing.T) {
	prov := &provisionerStub{failures: 2} // éxito en el tercer intento
	svc := newTestService(prov)
	ctx := context.Background()
	inst := agendada(t, svc)

	out, err := svc.Cerrar(ctx, inst.ID, CerrarIn{
		Evidencias: []string{"http://x/e1.png"},
		Notas:      "instalado ok",
	})
	require.NoError(t, err)
	require.Equal(t, EstadoCompletada, out.Estado)
	require.Equal(t, []string{"http://x/e1.png"}, out.Evidencias)
	require.Equal(t, 3, prov.calls)
}

func TestCerrar_AgotamientoConservaEvidencias(t *testing.T) {
	prov := &provisionerStub{failures: 10} // nunca tiene éxito
	svc := newTestService(prov)
	ctx := context.Background()
	inst := agendada(t, svc)

	_, err := svc.Cerrar(ctx, inst.ID, CerrarIn{
		Evidencias: []string{"http://x/e1.png"},
		Notas:      "zona sin señal",
	})
	requireFaultStatus(t, err, http.StatusBadGateway)
	require.Equal(t, 3, prov.calls, "exactamente 3 intentos")

	// Evidencias y notas persistidas a pesar de la falla; estado NoCompletada.
	got, gerr := svc.Get(ctx, inst.ID)
	require.NoError(t, gerr)
	require.Equal(t, EstadoNoCompletada, got.Estado)
	require.Equal(t, []string{"http://x/e1.png"}, got.Evidencias)
	require.Equal(t, "zona sin señal", got.Notas)
}

func TestCerrar_NoCompletadaEsRecuperable(t *testing.T) {
	prov := &provisionerStub{failures: 3} // falla la primera ronda completa
	svc := newTestService(prov)
	ctx := context.Background()
	inst := agendada(t, svc)

	_, err := svc.Cerrar(ctx, inst.ID, CerrarIn{Evidencias: []string{"e1"}})
	requireFaultStatus(t, err, http.StatusBadGateway)

	// Reintento del cierre: ahora provisiona y completa.
	out, err := svc.Cerrar(ctx, inst.ID, CerrarIn{Evidencias: []string{"e1"}})
	require.NoError(t, err)
	require.Equal(t, EstadoCompletada, out.Estado)
}

func TestAgendar_InventarioBestEffort(t *testing.T) {
	ctx := context.Background()

	// Inventario caído: se agenda igual.
	caido := NewHTTPInventario("http://127.0.0.1:1") // nada escucha ahí
	svc := NewService(NewMemStore(), fastRetrier(&provisionerStub{}), caido, "ONT,ROUTER", "")
	inst, err := svc.Agendar(ctx, AgendarIn{ClienteID: 1, Zona: "Sur"})
	require.NoError(t, err)
	require.Equal(t, EstadoProgramada, inst.Estado)

	// Inventario responde "sin stock": Conflict explícito.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"missing":"ONT"}`))
	}))
	defer ts.Close()
	svc = NewService(NewMemStore(), fastRetrier(&provisionerStub{}), NewHTTPInventario(ts.URL), "ONT", "")
	_, err = svc.Agendar(ctx, AgendarIn{ClienteID: 1, Zona: "Sur"})
	requireFaultStatus(t, err, http.StatusConflict)
}

func TestCrearTicket_AsignaTecnicoPorZona(t *testing.T) {
	svc := newTestService(&provisionerStub{})
	inst, tecnico, err := svc.CrearTicket(context.Background(), TicketIn{
		ClienteID: 4, Zona: "norte", Descripcion: "depto 2B",
	})
	require.NoError(t, err)
	require.Equal(t, "tec-norte-01", tecnico)
	require.Contains(t, inst.Notas, "Tecnico asignado: tec-norte-01")
	require.Equal(t, "Ventana abierta", inst.Ventana)

	// Zona desconocida cae al primer técnico del catálogo.
	_, tecnico, err = svc.CrearTicket(context.Background(), TicketIn{ClienteID: 4, Zona: "Poniente"})
	require.NoError(t, err)
	require.Equal(t, "tec-norte-01", tecnico)
}

func TestHTTP_CerrarFlujoCompleto(t *testing.T) {
	prov := &provisionerStub{}
	svc := newTestService(prov)
	ts := httptest.NewServer(Routes(svc, nil))
	defer ts.Close()

	inst := agendada(t, svc)

	put := func(path, body string) (*http.Response, map[string]any) {
		req, err := http.NewRequest(http.MethodPut, ts.URL+path, bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	// Evidencias vacías: 422 antes de tocar nada.
	resp, _ := put("/instalaciones/cerrar/1", `{"evidencias":[],"notas":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Zero(t, prov.calls)

	// Con evidencias y provisionamiento exitoso: Completada.
	resp, out := put("/instalaciones/cerrar/1", `{"evidencias":["http://x/e1.png"],"notas":"ok"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Completada", out["estado"])

	// id inexistente: 404.
	resp, _ = put("/instalaciones/cerrar/99", `{"evidencias":["e"]}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = inst
}

func TestProgreso_CompletadoExigeEvidencias(t *testing.T) {
	svc := newTestService(&provisionerStub{})
	ctx := context.Background()
	inst := agendada(t, svc)

	out, err := svc.Progreso(ctx, inst.ID, "en_camino")
	require.NoError(t, err)
	require.Equal(t, EstadoEnRuta, out.Estado)

	out, err = svc.Progreso(ctx, inst.ID, "instalando")
	require.NoError(t, err)
	require.Equal(t, EstadoEnSitio, out.Estado)

	// Sin evidencias el reporte no puede completar la instalación.
	_, err = svc.Progreso(ctx, inst.ID, "completado")
	requireFaultStatus(t, err, http.StatusUnprocessableEntity)

	out, err = svc.Cerrar(ctx, inst.ID, CerrarIn{Evidencias: []string{"http://x/e1.png"}})
	require.NoError(t, err)
	require.Equal(t, EstadoCompletada, out.Estado)

	// Ya cerrada con evidencias, el reporte es un no-op legal.
	out, err = svc.Progreso(ctx, inst.ID, "completado")
	require.NoError(t, err)
	require.Equal(t, EstadoCompletada, out.Estado)

	_, err = svc.Progreso(ctx, inst.ID, "volando")
	requireFaultStatus(t, err, http.StatusUnprocessableEntity)
}

func requireFaultStatus(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	rec := httptest.NewRecorder()
	httpx.WriteFault(rec, err)
	require.Equal(t, want, rec.Code, "error: %v", err)
}
