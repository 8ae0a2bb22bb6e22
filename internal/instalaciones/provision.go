package instalaciones

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/wispcore/internal/metrics"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
	"github.com/dropDatabas3/wispcore/internal/retry"
)

// Provisioner dispara el provisionamiento PPPoE remoto para un cliente.
type Provisioner interface {
	ProvisionarPPPoE(ctx context.Context, clienteID int64) error
}

// RedProvisioner llama al servicio red por HTTP con timeout fijo de 5s.
// Una vez emitida la llamada no se cancela: si el caller se desconecta la
// operación remota corre hasta el final y commitea su resultado.
type RedProvisioner struct {
	baseURL string
	client  *http.Client
}

func NewRedProvisioner(baseURL string) *RedProvisioner {
	return &RedProvisioner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *RedProvisioner) ProvisionarPPPoE(ctx context.Context, clienteID int64) error {
	body, _ := json.Marshal(map[string]int64{"cliente_id": clienteID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/router/provisionar-pppoe", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("red respondió %d", resp.StatusCode)
	}
	return nil
}

// Retrier ejecuta el provisionamiento con reintentos acotados:
// hasta 3 intentos con backoff 0.5s, 1s (sin espera tras el último).
// No compensa nada: provisionar-pppoe solo tiene efecto cuando finalmente
// tiene éxito.
type Retrier struct {
	prov   Provisioner
	policy retry.Policy
}

func NewRetrier(prov Provisioner) *Retrier {
	return &Retrier{
		prov: prov,
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Exponential(500 * time.Millisecond),
		},
	}
}

// AttemptProvision devuelve true si algún intento tuvo éxito. El agotamiento
// se reporta como false; decidir si eso es fatal es responsabilidad del caller.
func (r *Retrier) AttemptProvision(ctx context.Context, clienteID int64) bool {
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := r.prov.ProvisionarPPPoE(ctx, clienteID); err != nil {
			logger.From(ctx).Warn("intento de provisionamiento falló",
				logger.ClienteID(clienteID), logger.Intento(attempt), logger.Err(err))
			return err
		}
		return nil
	})
	if err != nil {
		metrics.ProvisionAttempts.WithLabelValues("fail").Inc()
		return false
	}
	metrics.ProvisionAttempts.WithLabelValues("ok").Inc()
	return true
}
