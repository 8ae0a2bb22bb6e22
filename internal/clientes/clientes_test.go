package clientes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/wispcore/internal/idempotency"
)

func TestValidRFC(t *testing.T) {
	assert.True(t, ValidRFC("GAPA900101AB1"))
	assert.True(t, ValidRFC("XAXX010101000"))
	assert.True(t, ValidRFC("ABC850101XY2")) // persona moral, 3 letras
	assert.False(t, ValidRFC(""))
	assert.False(t, ValidRFC("GAPA90AB1"))
	assert.False(t, ValidRFC("12345678901234"))
}

func TestValidTelefono(t *testing.T) {
	assert.True(t, ValidTelefono("5512345678"))
	assert.True(t, ValidTelefono("+52 55 1234 5678"))
	assert.False(t, ValidTelefono("123"))
	assert.False(t, ValidTelefono("no-es-numero"))
}

func newTestRouter(t *testing.T) (http.Handler, *MemStore) {
	t.Helper()
	store := NewMemStore()
	ledger := idempotency.New(idempotency.NewMemStore())
	return Routes(store, ledger, nil), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func altaBody() map[string]any {
	return map[string]any{
		"nombre":   "Ana García",
		"rfc":      "GAPA900101AB1",
		"email":    "ana@example.com",
		"telefono": "5512345678",
		"zona":     "Norte",
	}
}

func TestAltaValidacionFallFast(t *testing.T) {
	h, _ := newTestRouter(t)

	body := altaBody()
	body["rfc"] = "malo"
	rec := doJSON(t, h, http.MethodPost, "/clientes", body, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body = altaBody()
	body["telefono"] = "12"
	rec = doJSON(t, h, http.MethodPost, "/clientes", body, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAltaConLlaveIdempotente(t *testing.T) {
	h, _ := newTestRouter(t)
	headers := map[string]string{"Idempotency-Key": "alta-1"}

	first := doJSON(t, h, http.MethodPost, "/clientes", altaBody(), headers)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get("X-Idempotent-Replay"))

	second := doJSON(t, h, http.MethodPost, "/clientes", altaBody(), headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestAltaRFCDuplicadoEsReplay(t *testing.T) {
	h, _ := newTestRouter(t)

	// Sin llave de idempotencia: el RFC único hace de dedup natural.
	first := doJSON(t, h, http.MethodPost, "/clientes", altaBody(), nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, h, http.MethodPost, "/clientes", altaBody(), nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))

	var a, b Cliente
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
}

func TestInactivarCompensacion(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/clientes", altaBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cli Cliente
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cli))
	require.Equal(t, EstatusActivo, cli.Estatus)

	rec = doJSON(t, h, http.MethodPost, "/clientes/1/inactivar", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), EstatusInactivo)

	// Idempotente: inactivar dos veces no es error.
	rec = doJSON(t, h, http.MethodPost, "/clientes/1/inactivar", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/clientes/99/inactivar", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCliente(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/clientes", altaBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/clientes/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cli Cliente
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cli))
	assert.Equal(t, "Ana García", cli.Nombre)

	rec = doJSON(t, h, http.MethodGet, "/clientes/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
