package instalaciones

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	httpx "github.com/dropDatabas3/wispcore/internal/http"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// Inventario consulta disponibilidad de materiales antes de agendar.
type Inventario interface {
	// Disponible devuelve (ok, faltantes). Un error de transporte se trata
	// como "no se pudo verificar" y el agendado procede igual (best-effort).
	Disponible(ctx context.Context, zona, items string) (bool, string, error)
}

// HTTPInventario consulta el servicio de inventario con timeout de 5s.
type HTTPInventario struct {
	baseURL string
	client  *http.Client
}

func NewHTTPInventario(baseURL string) *HTTPInventario {
	return &HTTPInventario{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (i *HTTPInventario) Disponible(ctx context.Context, zona, items string) (bool, string, error) {
	u := fmt.Sprintf("%s/inventario/available?items=%s&zona=%s",
		i.baseURL, url.QueryEscape(items), url.QueryEscape(zona))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, "", err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	var out struct {
		OK      bool   `json:"ok"`
		Missing string `json:"missing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return false, out.Missing, nil
	}
	return out.OK, out.Missing, nil
}

// Service implementa la máquina de estados de instalaciones.
type Service struct {
	store      Store
	retrier    *Retrier
	inventario Inventario // nil = sin verificación
	skus       string
	tecnicos   []zonaTecnico
}

type zonaTecnico struct {
	zona    string
	tecnico string
}

func NewService(store Store, retrier *Retrier, inventario Inventario, requiredSKUs, tecnicos string) *Service {
	return &Service{
		store:      store,
		retrier:    retrier,
		inventario: inventario,
		skus:       requiredSKUs,
		tecnicos:   parseTecnicos(tecnicos),
	}
}

// parseTecnicos interpreta "Norte:tec-norte-01,Sur:tec-sur-01".
func parseTecnicos(raw string) []zonaTecnico {
	var out []zonaTecnico
	for _, chunk := range strings.Split(raw, ",") {
		chunk = strings.TrimSpace(chunk)
		zona, tecnico, ok := strings.Cut(chunk, ":")
		if !ok {
			continue
		}
		zona = strings.ToLower(strings.TrimSpace(zona))
		tecnico = strings.TrimSpace(tecnico)
		if zona != "" && tecnico != "" {
			out = append(out, zonaTecnico{zona: zona, tecnico: tecnico})
		}
	}
	if len(out) == 0 {
		out = append(out, zonaTecnico{zona: "default", tecnico: "tecnico-demo-01"})
	}
	return out
}

func (s *Service) seleccionarTecnico(zona string) string {
	key := strings.ToLower(strings.TrimSpace(zona))
	for _, zt := range s.tecnicos {
		if zt.zona == key {
			return zt.tecnico
		}
	}
	return s.tecnicos[0].tecnico
}

// AgendarIn es la entrada de agendado.
type AgendarIn struct {
	ClienteID   int64  `json:"clienteId"`
	Ventana     string `json:"ventana"`
	Zona        string `json:"zona"`
	Descripcion string `json:"descripcion"`
}

// Agendar crea una instalación Programada. La verificación de inventario es
// best-effort: si el servicio no responde se agenda igual; solo un "no hay
// stock" explícito bloquea con Conflict.
func (s *Service) Agendar(ctx context.Context, in AgendarIn) (*Instalacion, error) {
	if in.ClienteID < 1 {
		return nil, httpx.Validation("clienteId requerido")
	}
	if strings.TrimSpace(in.Zona) == "" {
		return nil, httpx.Validation("zona requerida")
	}

	if s.inventario != nil && s.skus != "" {
		items := requiredItems(s.skus)
		ok, missing, err := s.inventario.Disponible(ctx, in.Zona, items)
		if err != nil {
			logger.From(ctx).Warn("inventario no disponible, agendando de todos modos",
				logger.Err(err))
		} else if !ok {
			return nil, httpx.Conflict("inventario insuficiente: " + missing)
		}
	}

	return s.store.Create(ctx, &Instalacion{
		ClienteID: in.ClienteID,
		Ventana:   in.Ventana,
		Zona:      in.Zona,
		Estado:    EstadoProgramada,
		Notas:     in.Descripcion,
	})
}

func requiredItems(skus string) string {
	var parts []string
	for _, sku := range strings.Split(skus, ",") {
		if sku = strings.TrimSpace(sku); sku != "" {
			parts = append(parts, sku+":1")
		}
	}
	return strings.Join(parts, ",")
}

// Despachar mueve Programada→EnRuta. Repetido sobre EnRuta/EnSitio/Completada
// es no-op idempotente (devuelve el snapshot sin error); cualquier otro estado
// es Conflict.
func (s *Service) Despachar(ctx context.Context, id int64) (*Instalacion, error) {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, httpx.NotFound("instalación no encontrada")
	}
	switch inst.Estado {
	case EstadoEnRuta, EstadoEnSitio, EstadoCompletada:
		return inst, nil
	case EstadoProgramada:
		return s.store.SetEstado(ctx, id, EstadoEnRuta)
	default:
		return nil, httpx.Conflict("estado inválido para despachar: " + inst.Estado)
	}
}

// CerrarIn es la entrada del cierre.
type CerrarIn struct {
	Evidencias []string `json:"evidencias"`
	Notas      string   `json:"notas"`
}

// Cerrar intenta completar la instalación. Las evidencias y notas se
// persisten ANTES de provisionar: una falla de provisionamiento nunca pierde
// lo que subió el técnico, solo el estado refleja el desenlace.
func (s *Service) Cerrar(ctx context.Context, id int64, in CerrarIn) (*Instalacion, error) {
	// Validación fail-fast, independiente del estado actual.
	if len(in.Evidencias) == 0 {
		return nil, httpx.Validation("evidencias requeridas")
	}

	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, httpx.NotFound("instalación no encontrada")
	}

	if _, err := s.store.SetEvidencias(ctx, id, in.Evidencias, in.Notas); err != nil {
		return nil, err
	}

	if !s.retrier.AttemptProvision(ctx, inst.ClienteID) {
		if _, err := s.store.SetEstado(ctx, id, EstadoNoCompletada); err != nil {
			return nil, err
		}
		return nil, httpx.Upstream("provisionamiento fallido tras reintentos", nil)
	}

	return s.store.SetEstado(ctx, id, EstadoCompletada)
}

// progresoMap traduce el estatus que reporta el técnico a estados del ticket.
var progresoMap = map[string]string{
	"en_camino":  EstadoEnRuta,
	"instalando": EstadoEnSitio,
	"completado": EstadoCompletada,
}

// Progreso actualiza el estado según el reporte del portal técnico.
func (s *Service) Progreso(ctx context.Context, id int64, estatus string) (*Instalacion, error) {
	estado, ok := progresoMap[estatus]
	if !ok {
		return nil, httpx.Validation("estatus inválido: " + estatus)
	}
	if estado == EstadoCompletada {
		// Completada exige evidencias: el técnico debe cerrar por la ruta
		// de cierre, no por el reporte de progreso.
		actual, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if actual == nil {
			return nil, httpx.NotFound("instalación no encontrada")
		}
		if len(actual.Evidencias) == 0 {
			return nil, httpx.Validation("no se puede completar sin evidencias; usar el cierre")
		}
	}
	inst, err := s.store.SetEstado(ctx, id, estado)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, httpx.NotFound("instalación no encontrada")
	}
	return inst, nil
}

// TicketIn es la entrada de creación de ticket con técnico asignado.
type TicketIn struct {
	ClienteID   int64  `json:"clienteId"`
	Zona        string `json:"zona"`
	Ventana     string `json:"ventana"`
	Descripcion string `json:"descripcion"`
}

// CrearTicket agenda una instalación asignando técnico por zona.
func (s *Service) CrearTicket(ctx context.Context, in TicketIn) (*Instalacion, string, error) {
	if in.ClienteID < 1 {
		return nil, "", httpx.Validation("clienteId requerido")
	}
	if strings.TrimSpace(in.Zona) == "" {
		return nil, "", httpx.Validation("zona requerida")
	}
	ventana := in.Ventana
	if ventana == "" {
		ventana = "Ventana abierta"
	}
	tecnico := s.seleccionarTecnico(in.Zona)
	notas := strings.TrimSpace(in.Descripcion)
	if notas != "" {
		notas += "\n"
	}
	notas += "Tecnico asignado: " + tecnico

	inst, err := s.store.Create(ctx, &Instalacion{
		ClienteID: in.ClienteID,
		Ventana:   ventana,
		Zona:      in.Zona,
		Estado:    EstadoProgramada,
		Notas:     notas,
	})
	return inst, tecnico, err
}

// Get devuelve una instalación.
func (s *Service) Get(ctx context.Context, id int64) (*Instalacion, error) {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, httpx.NotFound("instalación no encontrada")
	}
	return inst, nil
}

// PorCliente lista las instalaciones de un cliente, más recientes primero.
func (s *Service) PorCliente(ctx context.Context, clienteID int64, limit int) ([]*Instalacion, error) {
	return s.store.ListByCliente(ctx, clienteID, limit)
}

// Agenda lista instalaciones filtradas por zona y/o estado.
func (s *Service) Agenda(ctx context.Context, zona, estado string, limit int) ([]*Instalacion, error) {
	return s.store.ListAgenda(ctx, zona, estado, limit)
}
