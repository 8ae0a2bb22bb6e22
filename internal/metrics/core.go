package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de dominio del núcleo de confiabilidad. Paquete independiente para
// evitar ciclos de import entre los servicios y el paquete HTTP.

var (
	IdempotentReplays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotency_replays_total",
		Help: "Respuestas servidas desde el ledger de idempotencia, por scope",
	}, []string{"scope"})

	ProvisionAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provision_attempts_total",
		Help: "Intentos de provisionamiento PPPoE por resultado (ok|fail)",
	}, []string{"result"})

	SagaResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_results_total",
		Help: "Resultados de sagas por nombre y desenlace (ok|compensated|aborted)",
	}, []string{"saga", "result"})

	RouterActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_actions_total",
		Help: "Acciones de router ejecutadas (no replays), por acción",
	}, []string{"accion"})
)

// Register registra las métricas de dominio en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		IdempotentReplays,
		ProvisionAttempts,
		SagaResults,
		RouterActions,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
