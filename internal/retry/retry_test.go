package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_ExitoAlPrimerIntento(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: Exponential(time.Millisecond)}
	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("esperaba 1 intento, hubo %d", calls)
	}
}

func TestDo_AgotaIntentosYDevuelveUltimoError(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: Exponential(time.Millisecond)}
	boom := errors.New("no responde")
	calls := 0
	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt != calls {
			t.Fatalf("attempt %d no coincide con llamada %d", attempt, calls)
		}
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("esperaba el último error, obtuve %v", err)
	}
	if calls != 3 {
		t.Fatalf("esperaba 3 intentos, hubo %d", calls)
	}
}

func TestDo_BackoffExponencial(t *testing.T) {
	b := Exponential(500 * time.Millisecond)
	for i, want := range []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second} {
		if got := b(i); got != want {
			t.Fatalf("backoff(%d) = %v, esperaba %v", i, got, want)
		}
	}
}

func TestDo_CancelacionCortaElBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: Exponential(10 * time.Second)}
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func(context.Context, int) error {
		return errors.New("fallo")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("esperaba context.Canceled, obtuve %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("la cancelación no cortó el sleep de backoff")
	}
}

func TestDo_SinSleepTrasUltimoIntento(t *testing.T) {
	p := Policy{MaxAttempts: 2, Backoff: func(int) time.Duration { return 5 * time.Millisecond }}
	start := time.Now()
	_ = p.Do(context.Background(), func(context.Context, int) error {
		return errors.New("fallo")
	})
	// 2 intentos con un solo backoff intermedio de 5ms
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("hubo espera tras el último intento: %v", d)
	}
}
