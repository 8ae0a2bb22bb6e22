// Package audit escribe eventos de auditoría en un log durable append-only.
// El append es fire-and-forget respecto a la respuesta del caller: es el único
// trabajo del core que sobrevive al handler.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/dropDatabas3/wispcore/internal/observability/logger"
)

// Trail acumula eventos en un canal y los persiste en orden desde una sola
// goroutine de escritura.
type Trail struct {
	ch   chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewTrail abre (o crea) el archivo en modo append y arranca el escritor.
func NewTrail(path string) (*Trail, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	t := &Trail{
		ch:   make(chan []byte, 256),
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer f.Close()
		for line := range t.ch {
			if _, err := f.Write(append(line, '\n')); err != nil {
				logger.L().Warn("audit append falló", logger.Err(err))
			}
		}
	}()
	return t, nil
}

// Append encola un evento. Nunca bloquea al caller: si el buffer está lleno el
// evento se pierde con un warning (best-effort declarado).
func (t *Trail) Append(event string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["event"] = event
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	b, err := json.Marshal(fields)
	if err != nil {
		logger.L().Warn("audit marshal falló", logger.Err(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.ch <- b:
	default:
		logger.L().Warn("audit buffer lleno, evento descartado")
	}
}

// Close drena los eventos pendientes y cierra el archivo.
func (t *Trail) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.mu.Unlock()
	<-t.done
}
