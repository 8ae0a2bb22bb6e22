package idempotency

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestExecute_ReplayDevuelveMismosBytes(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemStore())

	var runs int32
	op := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&runs, 1)
		return []byte(`{"status":"ok"}`), nil
	}

	r1, replay1, err := l.Execute(ctx, "K1", "cortar", op)
	if err != nil {
		t.Fatalf("primera ejecución falló: %v", err)
	}
	if replay1 {
		t.Fatal("la primera ejecución no debe ser replay")
	}

	r2, replay2, err := l.Execute(ctx, "K1", "cortar", op)
	if err != nil {
		t.Fatalf("segunda ejecución falló: %v", err)
	}
	if !replay2 {
		t.Fatal("la segunda ejecución debe ser replay")
	}
	if !bytes.Equal(r1, r2) {
		t.Fatalf("las respuestas deben ser byte-idénticas: %q vs %q", r1, r2)
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("la operación debe correr exactamente una vez, corrió %d", got)
	}
}

func TestExecute_ScopesIndependientes(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemStore())

	var runs int32
	op := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&runs, 1)
		return []byte(`{"n":1}`), nil
	}

	if _, _, err := l.Execute(ctx, "K1", "cortar", op); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Execute(ctx, "K1", "reconectar", op); err != nil {
		t.Fatal(err)
	}
	if runs != 2 {
		t.Fatalf("misma key en scopes distintos debe ejecutar dos veces, corrió %d", runs)
	}
}

func TestExecute_SinKeySiempreEjecuta(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemStore())

	var runs int32
	op := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&runs, 1)
		return []byte(`{}`), nil
	}

	for i := 0; i < 3; i++ {
		_, replay, err := l.Execute(ctx, "", "pago", op)
		if err != nil {
			t.Fatal(err)
		}
		if replay {
			t.Fatal("sin key nunca hay replay")
		}
	}
	if runs != 3 {
		t.Fatalf("sin key debe ejecutar siempre, corrió %d", runs)
	}
}

func TestExecute_FalloLiberaReserva(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemStore())

	boom := errors.New("upstream caído")
	_, _, err := l.Execute(ctx, "K1", "pago", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("esperaba el error de la operación, obtuve %v", err)
	}

	// El reintento del caller debe poder ejecutar de nuevo.
	resp, replay, err := l.Execute(ctx, "K1", "pago", func(context.Context) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if replay {
		t.Fatal("tras una falla liberada no debe haber replay")
	}
	if string(resp) != `{"ok":true}` {
		t.Fatalf("respuesta inesperada: %s", resp)
	}
}

func TestExecute_ConcurrentesMismaKeyEjecutanUnaVez(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemStore())

	var runs int32
	op := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&runs, 1)
		return []byte(`{"status":"ok"}`), nil
	}

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := l.Execute(ctx, "K-race", "provisionar-pppoe", op); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ejecución concurrente falló: %v", err)
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("bajo concurrencia la operación debe correr una sola vez, corrió %d", got)
	}
}

func TestExecute_BlobCorruptoReejecuta(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	l := New(store)

	// Registro pre-existente con bytes que no son JSON (idempotencia degradada).
	if _, _, err := store.Reserve(ctx, "K1", "cortar"); err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, "K1", "cortar", []byte("\xff\xfe")); err != nil {
		t.Fatal(err)
	}

	resp, replay, err := l.Execute(ctx, "K1", "cortar", func(context.Context) ([]byte, error) {
		return []byte(`{"status":"ok"}`), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if replay {
		t.Fatal("un blob corrupto cuenta como no-encontrado, no como replay")
	}
	if string(resp) != `{"status":"ok"}` {
		t.Fatalf("respuesta inesperada: %s", resp)
	}

	// Y la sobreescritura queda persistida para el siguiente replay.
	rec, err := store.Get(ctx, "K1", "cortar")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Response) != `{"status":"ok"}` {
		t.Fatalf("el blob corrupto debió sobreescribirse, quedó %q", rec.Response)
	}
}
