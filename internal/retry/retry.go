// Package retry extrae la política de reintentos con backoff que antes vivía
// inline en el cierre de instalaciones.
package retry

import (
	"context"
	"time"
)

// Policy define una política de reintentos: número máximo de intentos, función
// de backoff entre intentos y timeout por intento (0 = sin timeout propio).
type Policy struct {
	MaxAttempts       int
	Backoff           func(attempt int) time.Duration
	PerAttemptTimeout time.Duration
}

// Exponential devuelve un backoff base*2^attempt (attempt 0-indexed).
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

// Do ejecuta fn hasta que devuelva nil o se agoten los intentos.
// No duerme después del último intento. El sleep de backoff es cancelable
// por contexto: no hay busy-wait ni espera huérfana.
// Devuelve nil en éxito o el error del último intento.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var last error
	for i := 0; i < p.MaxAttempts; i++ {
		actx := ctx
		var cancel context.CancelFunc
		if p.PerAttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
		}
		last = fn(actx, i)
		if cancel != nil {
			cancel()
		}
		if last == nil {
			return nil
		}
		if i == p.MaxAttempts-1 {
			break
		}
		t := time.NewTimer(p.Backoff(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return last
}
