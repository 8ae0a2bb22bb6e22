// Package pagos procesa pagos de forma idempotente y recibe webhooks del
// agregador con anti-replay por event id. El pago confirmado es el punto de
// no retorno de la saga de cobro: no existe compensación para un pago que
// nunca tomó efecto.
package pagos

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pago es un cobro confirmado.
type Pago struct {
	Referencia string  `json:"referencia"`
	Metodo     string  `json:"metodo"`
	Monto      float64 `json:"monto"`
	Estatus    string  `json:"estatus"`
}

// Store persiste pagos y el log de webhooks.
type Store interface {
	// CreateConfirmado inserta el pago junto con su transacción y
	// conciliación en un solo commit.
	CreateConfirmado(ctx context.Context, p *Pago) error
	Get(ctx context.Context, referencia string) (*Pago, error)
	// LogWebhook registra el evento; devuelve false si el event id ya se vio.
	LogWebhook(ctx context.Context, eventID string, payload []byte) (bool, error)
}

// ─── PGStore ───

type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (s *PGStore) CreateConfirmado(ctx context.Context, p *Pago) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO pagos (referencia, metodo, monto, estatus, creado_en)
		 VALUES ($1, $2, $3, $4, now())`,
		p.Referencia, p.Metodo, p.Monto, p.Estatus)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO pagos_transacciones (pago_ref, provider, provider_tx, exitoso, creado_en)
		 VALUES ($1, $2, $3, true, now())`,
		p.Referencia, p.Metodo, uuid.NewString())
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO pagos_conciliaciones (referencia, conciliado, creado_en)
		 VALUES ($1, true, now())`,
		p.Referencia)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, referencia string) (*Pago, error) {
	const q = `SELECT referencia, metodo, monto, estatus FROM pagos WHERE referencia = $1`
	var p Pago
	err := s.pool.QueryRow(ctx, q, referencia).Scan(&p.Referencia, &p.Metodo, &p.Monto, &p.Estatus)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) LogWebhook(ctx context.Context, eventID string, payload []byte) (bool, error) {
	const q = `
		INSERT INTO pagos_webhook_log (event_id, payload, creado_en)
		VALUES ($1, $2, now())
		ON CONFLICT (event_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, q, eventID, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ─── MemStore ───

type MemStore struct {
	mu       sync.Mutex
	pagos    map[string]*Pago
	webhooks map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{pagos: make(map[string]*Pago), webhooks: make(map[string][]byte)}
}

func (s *MemStore) CreateConfirmado(_ context.Context, p *Pago) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pagos[p.Referencia] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, referencia string) (*Pago, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pagos[referencia]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) LogWebhook(_ context.Context, eventID string, payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[eventID]; ok {
		return false, nil
	}
	s.webhooks[eventID] = append([]byte(nil), payload...)
	return true, nil
}
