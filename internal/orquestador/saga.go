// Package orquestador coordina los flujos multi-servicio (alta de cliente,
// cobro) como sagas de pasos tipados. Cada paso declara si es crítico: un
// paso crítico que falla aborta la saga y dispara la compensación de los
// pasos ya ejecutados; un paso best-effort que falla solo se loguea y se
// refleja en la metadata de la respuesta.
package orquestador

import (
	"context"

	"github.com/dropDatabas3/wispcore/internal/metrics"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// Paso es una unidad de trabajo de una saga. La clasificación crítica /
// best-effort es explícita en la estructura, no depende del manejo de
// errores del llamador.
type Paso struct {
	Nombre   string
	Critical bool
	Run      func(ctx context.Context) error
	// Compensar deshace el efecto de este paso si un paso crítico
	// posterior falla. Opcional; solo se invoca si Run tuvo éxito.
	Compensar func(ctx context.Context) error
}

// Resultado resume el desenlace de una ejecución.
type Resultado struct {
	OK          bool
	PasoFallido string
	Err         error
	Compensado  bool
	// BestEffort registra el éxito de cada paso no crítico por nombre.
	BestEffort map[string]bool
}

// Ejecutar corre los pasos en orden. El desenlace se cuenta en la métrica
// saga_results_total como ok, aborted (crítico falló, nada que deshacer) o
// compensated (crítico falló y se corrió al menos una compensación).
func Ejecutar(ctx context.Context, saga string, pasos []Paso) Resultado {
	log := logger.From(ctx).With(logger.Saga(saga))
	res := Resultado{OK: true, BestEffort: make(map[string]bool)}

	var deshacer []Paso
	for _, p := range pasos {
		err := p.Run(ctx)
		if err == nil {
			if !p.Critical {
				res.BestEffort[p.Nombre] = true
			}
			if p.Compensar != nil {
				deshacer = append(deshacer, p)
			}
			continue
		}

		if !p.Critical {
			// El punto de no retorno ya pasó: se traga el error, queda
			// solo en logs y en la metadata.
			log.Warn("paso best-effort falló", logger.Paso(p.Nombre), logger.Err(err))
			res.BestEffort[p.Nombre] = false
			continue
		}

		log.Error("paso crítico falló", logger.Paso(p.Nombre), logger.Err(err))
		res.OK = false
		res.PasoFallido = p.Nombre
		res.Err = err

		for i := len(deshacer) - 1; i >= 0; i-- {
			c := deshacer[i]
			if cerr := c.Compensar(ctx); cerr != nil {
				// La compensación falló: no hay más niveles de rollback,
				// solo evidencia en logs para intervención manual.
				log.Error("compensación falló", logger.Paso(c.Nombre), logger.Err(cerr))
				continue
			}
			log.Info("compensación ejecutada", logger.Paso(c.Nombre))
			res.Compensado = true
		}

		if res.Compensado {
			metrics.SagaResults.WithLabelValues(saga, "compensated").Inc()
		} else {
			metrics.SagaResults.WithLabelValues(saga, "aborted").Inc()
		}
		return res
	}

	metrics.SagaResults.WithLabelValues(saga, "ok").Inc()
	return res
}
