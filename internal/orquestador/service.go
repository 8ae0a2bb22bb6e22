package orquestador

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// AltaClienteIn es el payload de la saga de onboarding.
type AltaClienteIn struct {
	Nombre   string `json:"nombre"`
	RFC      string `json:"rfc"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Zona     string `json:"zona"`
}

// AltaClienteOut es el resultado compuesto del onboarding.
type AltaClienteOut struct {
	Status    string          `json:"status"`
	ClienteID int64           `json:"clienteId"`
	Cliente   json.RawMessage `json:"cliente,omitempty"`
	Factura   json.RawMessage `json:"factura,omitempty"`
}

// ProcesarPagoIn es el payload de la saga de cobro.
type ProcesarPagoIn struct {
	ClienteID int64   `json:"clienteId"`
	Monto     float64 `json:"monto"`
	Metodo    string  `json:"metodo"`
	Telefono  string  `json:"telefono"`
}

// ProcesarPagoOut reporta el pago más el desenlace de los pasos best-effort.
type ProcesarPagoOut struct {
	Status      string          `json:"status"`
	Pago        json.RawMessage `json:"pago"`
	Notificado  bool            `json:"notificado"`
	Reconectado bool            `json:"reconectado"`
}

// SagaError es el desenlace de una saga abortada, con lo necesario para
// distinguir qué paso falló y si hubo compensación.
type SagaError struct {
	Saga       string `json:"saga"`
	Paso       string `json:"paso"`
	Compensado bool   `json:"compensado"`
	Detalle    string `json:"detalle"`
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("saga %s abortada en paso %s: %s", e.Saga, e.Paso, e.Detalle)
}

// Service ejecuta las sagas contra los servicios colaboradores.
type Service struct {
	clients *Clients
}

func NewService(clients *Clients) *Service {
	return &Service{clients: clients}
}

// AltaCliente corre el onboarding: alta en clientes (crítico, idempotente con
// la llave del caller) y primera factura (crítico). Si la factura falla, la
// única compensación es inactivar al cliente recién creado; el alta en sí
// nunca se deshace.
func (s *Service) AltaCliente(ctx context.Context, in AltaClienteIn, idemKey string) (*AltaClienteOut, error) {
	out := &AltaClienteOut{Status: "ok"}

	pasos := []Paso{
		{
			Nombre:   "alta-cliente",
			Critical: true,
			Run: func(ctx context.Context) error {
				raw, err := s.clients.Clientes.postOK(ctx, "/clientes",
					map[string]string{"Idempotency-Key": idemKey}, in)
				if err != nil {
					return err
				}
				var cli struct {
					ID int64 `json:"id"`
				}
				if err := json.Unmarshal(raw, &cli); err != nil || cli.ID < 1 {
					return fmt.Errorf("respuesta de clientes sin id: %s", truncate(raw, 128))
				}
				out.ClienteID = cli.ID
				out.Cliente = raw
				return nil
			},
			Compensar: func(ctx context.Context) error {
				path := fmt.Sprintf("/clientes/%d/inactivar", out.ClienteID)
				_, err := s.clients.Clientes.postOK(ctx, path, nil, nil)
				return err
			},
		},
		{
			Nombre:   "primera-factura",
			Critical: true,
			Run: func(ctx context.Context) error {
				raw, err := s.clients.Facturacion.postOK(ctx, "/facturacion/generar-masiva",
					nil, map[string]any{"clienteIds": []int64{out.ClienteID}})
				if err != nil {
					return err
				}
				out.Factura = raw
				return nil
			},
		},
	}

	res := Ejecutar(ctx, "alta-cliente", pasos)
	if !res.OK {
		return nil, &SagaError{
			Saga:       "alta-cliente",
			Paso:       res.PasoFallido,
			Compensado: res.Compensado,
			Detalle:    res.Err.Error(),
		}
	}
	logger.From(ctx).Info("onboarding completado",
		logger.Saga("alta-cliente"), logger.ClienteID(out.ClienteID))
	return out, nil
}

// ProcesarPago corre el cobro. El pago es el único paso crítico y el punto de
// no retorno: un pago que nunca tomó efecto no se compensa, solo se reporta.
// Notificación por whatsapp y reconexión de red son best-effort.
func (s *Service) ProcesarPago(ctx context.Context, in ProcesarPagoIn, idemKey string) (*ProcesarPagoOut, error) {
	out := &ProcesarPagoOut{Status: "ok"}

	pasos := []Paso{
		{
			Nombre:   "procesar-pago",
			Critical: true,
			Run: func(ctx context.Context) error {
				raw, err := s.clients.Pagos.postOK(ctx, "/pagos/procesar",
					map[string]string{"Idempotency-Key": idemKey},
					map[string]any{"clienteId": in.ClienteID, "monto": in.Monto, "metodo": in.Metodo})
				if err != nil {
					return err
				}
				out.Pago = raw
				return nil
			},
		},
		{
			Nombre: "notificar-whatsapp",
			Run: func(ctx context.Context) error {
				_, err := s.clients.Whatsapp.postOK(ctx, "/whatsapp/send-template", nil, map[string]any{
					"telefono": in.Telefono,
					"template": "pago_confirmado",
					"params":   map[string]any{"monto": in.Monto},
				})
				return err
			},
		},
		{
			Nombre: "reconectar-red",
			Run: func(ctx context.Context) error {
				_, err := s.clients.Red.postOK(ctx, "/router/reconectar", nil,
					map[string]any{"cliente_id": in.ClienteID})
				return err
			},
		},
	}

	res := Ejecutar(ctx, "procesar-pago", pasos)
	if !res.OK {
		return nil, &SagaError{
			Saga:    "procesar-pago",
			Paso:    res.PasoFallido,
			Detalle: res.Err.Error(),
		}
	}
	out.Notificado = res.BestEffort["notificar-whatsapp"]
	out.Reconectado = res.BestEffort["reconectar-red"]
	return out, nil
}
