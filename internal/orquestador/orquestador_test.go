package orquestador

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/wispcore/internal/cache/memory"
)

// collaborators levanta stubs HTTP de los servicios remotos y devuelve el
// set de clients apuntando a ellos.
type collaborators struct {
	clientes    *httptest.Server
	facturacion *httptest.Server
	pagos       *httptest.Server
	red         *httptest.Server
	whatsapp    *httptest.Server

	inactivados atomic.Int64
}

func newCollaborators(t *testing.T, facturaFalla, whatsappFalla, redFalla bool) (*collaborators, *Clients) {
	t.Helper()
	c := &collaborators{}

	c.clientes = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/clientes" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":42,"nombre":"Ana","estatus":"Activo"}`))
			return
		}
		// POST /clientes/{id}/inactivar
		c.inactivados.Add(1)
		_, _ = w.Write([]byte(`{"id":42,"estatus":"Inactivo"}`))
	}))
	t.Cleanup(c.clientes.Close)

	c.facturacion = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if facturaFalla {
			http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"facturas":1}`))
	}))
	t.Cleanup(c.facturacion.Close)

	c.pagos = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "" {
			w.Header().Set("X-Idempotent-Replay", "false")
		}
		_, _ = w.Write([]byte(`{"referencia":"ref-1","estatus":"confirmado","monto":350}`))
	}))
	t.Cleanup(c.pagos.Close)

	c.red = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if redFalla {
			http.Error(w, `{"error":"upstream_unavailable"}`, http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","replay":false}`))
	}))
	t.Cleanup(c.red.Close)

	c.whatsapp = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if whatsappFalla {
			http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"enviado":true}`))
	}))
	t.Cleanup(c.whatsapp.Close)

	clients := NewClients(c.clientes.URL, c.facturacion.URL, c.pagos.URL, c.red.URL, c.whatsapp.URL)
	return c, clients
}

func TestAltaClienteCompleta(t *testing.T) {
	col, clients := newCollaborators(t, false, false, false)
	svc := NewService(clients)

	out, err := svc.AltaCliente(context.Background(), AltaClienteIn{Nombre: "Ana"}, "alta-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.ClienteID)
	assert.NotEmpty(t, out.Factura)
	assert.Equal(t, int64(0), col.inactivados.Load())
}

func TestAltaClienteCompensaSiFacturaFalla(t *testing.T) {
	col, clients := newCollaborators(t, true, false, false)
	svc := NewService(clients)

	_, err := svc.AltaCliente(context.Background(), AltaClienteIn{Nombre: "Ana"}, "")
	require.Error(t, err)

	var se *SagaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "primera-factura", se.Paso)
	assert.True(t, se.Compensado)
	// La compensación inactivó al cliente recién creado.
	assert.Equal(t, int64(1), col.inactivados.Load())
}

func TestAltaClienteSinCompensacionSiAltaFalla(t *testing.T) {
	col, clients := newCollaborators(t, false, false, false)
	col.clientes.Close() // clientes caído: el paso 1 nunca tiene éxito
	svc := NewService(clients)

	_, err := svc.AltaCliente(context.Background(), AltaClienteIn{Nombre: "Ana"}, "")
	require.Error(t, err)

	var se *SagaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "alta-cliente", se.Paso)
	assert.False(t, se.Compensado)
	assert.Equal(t, int64(0), col.inactivados.Load())
}

func TestProcesarPagoTodoBien(t *testing.T) {
	_, clients := newCollaborators(t, false, false, false)
	svc := NewService(clients)

	out, err := svc.ProcesarPago(context.Background(), ProcesarPagoIn{ClienteID: 7, Monto: 350}, "pago-7")
	require.NoError(t, err)
	assert.True(t, out.Notificado)
	assert.True(t, out.Reconectado)
	assert.Contains(t, string(out.Pago), "confirmado")
}

func TestProcesarPagoBestEffortNoAborta(t *testing.T) {
	_, clients := newCollaborators(t, false, true, true)
	svc := NewService(clients)

	out, err := svc.ProcesarPago(context.Background(), ProcesarPagoIn{ClienteID: 7, Monto: 350}, "")
	require.NoError(t, err)
	// El pago pasó: la saga es exitosa aunque notificación y reconexión fallen.
	assert.False(t, out.Notificado)
	assert.False(t, out.Reconectado)
}

func TestProcesarPagoCriticoAborta(t *testing.T) {
	col, clients := newCollaborators(t, false, false, false)
	col.pagos.Close()
	svc := NewService(clients)

	_, err := svc.ProcesarPago(context.Background(), ProcesarPagoIn{ClienteID: 7, Monto: 350}, "")
	require.Error(t, err)

	var se *SagaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "procesar-pago", se.Paso)
	assert.False(t, se.Compensado)
}

func TestSagaHTTPProcesarPago(t *testing.T) {
	_, clients := newCollaborators(t, false, false, false)
	h := Routes(NewService(clients), NewStatusBoard(memory.New(time.Minute), time.Minute), nil, nil, nil)

	body, _ := json.Marshal(map[string]any{"clienteId": 7, "monto": 350, "telefono": "5512345678"})
	req := httptest.NewRequest(http.MethodPost, "/saga/procesar-pago", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "pago-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out ProcesarPagoOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Notificado)
	assert.True(t, out.Reconectado)
}

func TestSagaHTTPAltaFallidaReporta400(t *testing.T) {
	_, clients := newCollaborators(t, true, false, false)
	h := Routes(NewService(clients), NewStatusBoard(memory.New(time.Minute), time.Minute), nil, nil, nil)

	body, _ := json.Marshal(map[string]any{"nombre": "Ana", "rfc": "GAPA900101AB1"})
	req := httptest.NewRequest(http.MethodPost, "/saga/alta-cliente", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "primera-factura", out["paso"])
	assert.Equal(t, true, out["compensado"])
}

func TestRouterStatusBoard(t *testing.T) {
	board := NewStatusBoard(memory.New(time.Minute), time.Minute)
	h := Routes(nil, board, nil, nil, nil)

	body, _ := json.Marshal(map[string]any{"routerId": "rt-9", "online": false, "zona": "Norte"})
	req := httptest.NewRequest(http.MethodPost, "/router/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var st RouterStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	// Offline implica sugerencia de reset.
	assert.Equal(t, "reset", st.Accion)

	req = httptest.NewRequest(http.MethodGet, "/router/status/rt-9", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/router/status/rt-nunca", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProxyFiltraHopByHop(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))
		assert.Empty(t, r.Header.Get("Keep-Alive"))
		assert.Equal(t, "clave-1", r.Header.Get("Idempotency-Key"))
		w.Header().Set("Keep-Alive", "timeout=5")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer upstream.Close()

	proxy, err := NewRedProxy(upstream.URL)
	require.NoError(t, err)
	h := Routes(nil, NewStatusBoard(memory.New(time.Minute), time.Minute), nil, proxy, nil)

	req := httptest.NewRequest(http.MethodPost, "/router/cortar", bytes.NewReader([]byte(`{"cliente_id":1}`)))
	req.Header.Set("Idempotency-Key", "clave-1")
	req.Header.Set("Proxy-Authorization", "basic xyz")
	req.Header.Set("Keep-Alive", "timeout=5")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Keep-Alive"))
}

func TestNotificacionCanalDesconocido(t *testing.T) {
	h := Routes(nil, NewStatusBoard(memory.New(time.Minute), time.Minute), NewNotifier(nil, nil), nil, nil)

	body, _ := json.Marshal(map[string]any{"canal": "paloma", "destinatario": "x", "mensaje": "hola"})
	req := httptest.NewRequest(http.MethodPost, "/notificaciones", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNotificacionPortal(t *testing.T) {
	h := Routes(nil, NewStatusBoard(memory.New(time.Minute), time.Minute), NewNotifier(nil, nil), nil, nil)

	body, _ := json.Marshal(map[string]any{"canal": "portal", "destinatario": "cliente-42", "mensaje": "pago recibido"})
	req := httptest.NewRequest(http.MethodPost, "/notificaciones", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "enviado")
}
