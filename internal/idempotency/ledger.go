// Package idempotency implementa el ledger de operaciones idempotentes
// compartido por los servicios con efectos secundarios.
//
// La reserva de la key y la ejecución son atómicas: primero se inserta la
// reserva (unique constraint en el backend) y solo quien gana la reserva
// ejecuta la operación. Dos requests concurrentes con la misma key fresca
// nunca ejecutan la operación dos veces.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/wispcore/internal/metrics"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// ErrEnCurso indica que otro proceso ganó la reserva y su ejecución sigue en
// vuelo más allá de la ventana de espera.
var ErrEnCurso = errors.New("idempotency: operación en curso por otro proceso")

// Record es una entrada del ledger. Una vez escrita la respuesta el registro
// es inmutable; el core nunca borra registros (la retención es externa).
type Record struct {
	Key       string
	Scope     string
	Response  []byte // nil mientras la reserva está en vuelo
	CreatedAt time.Time
}

// Store persiste los registros de idempotencia de un servicio.
// Cada servicio dueño usa su propia tabla/instancia.
type Store interface {
	// Reserve intenta reservar (key, scope). reserved=true si esta llamada
	// ganó la reserva; si ya existía devuelve el registro (Response nil si
	// la ejecución ganadora sigue en vuelo).
	Reserve(ctx context.Context, key, scope string) (reserved bool, existing *Record, err error)
	// Complete graba la respuesta de una reserva ganada (o sobreescribe un
	// registro corrupto detectado en replay).
	Complete(ctx context.Context, key, scope string, response []byte) error
	// Release libera una reserva cuya operación falló, para que un reintento
	// del caller pueda volver a ejecutar.
	Release(ctx context.Context, key, scope string) error
	// Get devuelve el registro o nil si no existe.
	Get(ctx context.Context, key, scope string) (*Record, error)
}

// Ledger resuelve Execute sobre un Store, serializando in-process las
// ejecuciones con la misma key via singleflight.
type Ledger struct {
	store Store
	group singleflight.Group

	// espera máxima por una reserva ajena en vuelo
	waitInflight time.Duration
}

func New(store Store) *Ledger {
	return &Ledger{store: store, waitInflight: 2 * time.Second}
}

type execResult struct {
	resp   []byte
	replay bool
}

// Execute corre op a lo sumo una vez por (key, scope).
//
//   - key vacía: siempre ejecuta (sin dedup); la duplicación at-least-once
//     queda en manos del caller.
//   - registro existente: devuelve la respuesta guardada sin tocar op,
//     replay=true.
//   - key fresca: reserva, ejecuta, persiste respuesta y devuelve replay=false.
//
// Las respuestas del sistema son siempre JSON; un blob guardado que no sea
// JSON válido se trata como "no encontrado" (idempotencia degradada): se
// loguea un warning, op se re-ejecuta y la respuesta se sobreescribe.
func (l *Ledger) Execute(ctx context.Context, key, scope string, op func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if key == "" {
		resp, err := op(ctx)
		return resp, false, err
	}

	v, err, _ := l.group.Do(scope+"\x00"+key, func() (any, error) {
		return l.execute(ctx, key, scope, op)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(execResult)
	if res.replay {
		metrics.IdempotentReplays.WithLabelValues(scope).Inc()
	}
	return res.resp, res.replay, nil
}

func (l *Ledger) execute(ctx context.Context, key, scope string, op func(context.Context) ([]byte, error)) (execResult, error) {
	reserved, existing, err := l.store.Reserve(ctx, key, scope)
	if err != nil {
		return execResult{}, err
	}

	if !reserved {
		if existing != nil && existing.Response != nil {
			if !json.Valid(existing.Response) {
				// Fail-open deliberado: un blob ilegible no bloquea la operación.
				logger.From(ctx).Warn("respuesta idempotente corrupta, re-ejecutando",
					logger.Op(scope), logger.Component("idempotency"))
				return l.reexecuteOverwrite(ctx, key, scope, op)
			}
			return execResult{resp: existing.Response, replay: true}, nil
		}
		// Reserva ajena en vuelo: esperamos a que el ganador persista.
		rec, err := l.awaitCompletion(ctx, key, scope)
		if err != nil {
			return execResult{}, err
		}
		return execResult{resp: rec.Response, replay: true}, nil
	}

	resp, err := op(ctx)
	if err != nil {
		if rerr := l.store.Release(ctx, key, scope); rerr != nil {
			logger.From(ctx).Warn("no se pudo liberar reserva idempotente",
				logger.Op(scope), logger.Err(rerr))
		}
		return execResult{}, err
	}
	if err := l.store.Complete(ctx, key, scope, resp); err != nil {
		return execResult{}, err
	}
	return execResult{resp: resp, replay: false}, nil
}

func (l *Ledger) reexecuteOverwrite(ctx context.Context, key, scope string, op func(context.Context) ([]byte, error)) (execResult, error) {
	resp, err := op(ctx)
	if err != nil {
		return execResult{}, err
	}
	if err := l.store.Complete(ctx, key, scope, resp); err != nil {
		return execResult{}, err
	}
	return execResult{resp: resp, replay: false}, nil
}

func (l *Ledger) awaitCompletion(ctx context.Context, key, scope string) (*Record, error) {
	deadline := time.Now().Add(l.waitInflight)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		rec, err := l.store.Get(ctx, key, scope)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Response != nil {
			return rec, nil
		}
		if rec == nil {
			// El ganador falló y liberó la reserva: reintentamos la ejecución.
			return nil, ErrEnCurso
		}
		if time.Now().After(deadline) {
			return nil, ErrEnCurso
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}
