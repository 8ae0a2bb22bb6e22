package red

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/wispcore/internal/audit"
	"github.com/dropDatabas3/wispcore/internal/idempotency"
	"github.com/dropDatabas3/wispcore/internal/metrics"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// Acciones de control soportadas. Todas pasan por el ledger con
// scope = nombre de la acción.
const (
	AccionProvisionarPPPoE    = "provisionar-pppoe"
	AccionCrearUsuarioHotspot = "crear-usuario-hotspot"
	AccionCortar              = "cortar"
	AccionReconectar          = "reconectar"
)

// EsAccion valida el nombre de una acción de router.
func EsAccion(s string) bool {
	switch s {
	case AccionProvisionarPPPoE, AccionCrearUsuarioHotspot, AccionCortar, AccionReconectar:
		return true
	}
	return false
}

// ActionResult es la respuesta de toda acción de control.
type ActionResult struct {
	Status string `json:"status"`
	Replay bool   `json:"replay"`
	Estado Estado `json:"estado"`
}

// PingResult es la respuesta del diagnóstico (no idempotente).
type PingResult struct {
	Host      string `json:"host"`
	OK        bool   `json:"ok"`
	LatencyMs int    `json:"latency_ms"`
}

// latencia simulada fija del modo emulado
const latenciaSimuladaMs = 42

// Service aplica las acciones de router sobre el Store, deduplicadas por el
// ledger, con un append de auditoría por cada mutación.
type Service struct {
	store  Store
	ledger *idempotency.Ledger
	trail  *audit.Trail
	mode   string
}

func NewService(store Store, ledger *idempotency.Ledger, trail *audit.Trail, mode string) *Service {
	return &Service{store: store, ledger: ledger, trail: trail, mode: mode}
}

// Action ejecuta una acción de control idempotente. Si idemKey viene vacía se
// usa la key default determinística "{accion}-{clienteID}".
func (s *Service) Action(ctx context.Context, accion string, clienteID int64, idemKey string) (*ActionResult, error) {
	if idemKey == "" {
		idemKey = fmt.Sprintf("%s-%d", accion, clienteID)
	}

	resp, replay, err := s.ledger.Execute(ctx, idemKey, accion, func(ctx context.Context) ([]byte, error) {
		est, err := s.apply(ctx, accion, clienteID)
		if err != nil {
			return nil, err
		}
		metrics.RouterActions.WithLabelValues(accion).Inc()
		// Fire-and-forget: el append no participa en la respuesta.
		s.trail.Append(accion, map[string]any{
			"cliente_id": clienteID,
			"connected":  est.Connected,
			"latency_ms": est.LatencyMs,
			"fake_ip":    est.FakeIP,
			"mode":       est.Mode,
		})
		return json.Marshal(ActionResult{Status: "ok", Estado: *est})
	})
	if err != nil {
		return nil, err
	}

	var res ActionResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return nil, err
	}
	res.Replay = replay
	if replay {
		logger.From(ctx).Info("acción replay desde ledger",
			logger.Accion(accion), logger.ClienteID(clienteID))
	}
	return &res, nil
}

func (s *Service) apply(ctx context.Context, accion string, clienteID int64) (*Estado, error) {
	switch accion {
	case AccionProvisionarPPPoE, AccionReconectar:
		return s.store.SetConnected(ctx, clienteID, true, s.mode)
	case AccionCortar:
		return s.store.SetConnected(ctx, clienteID, false, s.mode)
	case AccionCrearUsuarioHotspot:
		// Evento facturable sin cambio de conectividad.
		return s.store.Ensure(ctx, clienteID, s.mode)
	}
	return nil, fmt.Errorf("red: acción desconocida %q", accion)
}

// Ping es un diagnóstico NO idempotente: siempre ejecuta y responde la
// latencia simulada. Si hay cliente asociado actualiza latency_ms de forma
// oportunista (un cliente desconocido no es error).
func (s *Service) Ping(ctx context.Context, host string, clienteID *int64) (*PingResult, error) {
	if clienteID != nil {
		if _, err := s.store.SetLatency(ctx, *clienteID, latenciaSimuladaMs); err != nil {
			logger.From(ctx).Warn("no se pudo actualizar latencia",
				logger.ClienteID(*clienteID), logger.Err(err))
		}
	}
	return &PingResult{Host: host, OK: true, LatencyMs: latenciaSimuladaMs}, nil
}

// Traceroute emulado: hops fijos.
func (s *Service) Traceroute(host string) map[string]any {
	return map[string]any{
		"host": host,
		"hops": []string{"gw.local", "isp-edge", "upstream"},
	}
}

// Estado devuelve el snapshot actual del cliente (nil si nunca fue tocado).
func (s *Service) Estado(ctx context.Context, clienteID int64) (*Estado, error) {
	return s.store.Get(ctx, clienteID)
}
