package red

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persiste el estado de router por cliente.
type Store interface {
	// Ensure devuelve el estado del cliente, creándolo en el primer toque
	// (connected=false, fake_ip determinística).
	Ensure(ctx context.Context, clienteID int64, mode string) (*Estado, error)
	// SetConnected muta la conectividad y devuelve el snapshot resultante.
	SetConnected(ctx context.Context, clienteID int64, connected bool, mode string) (*Estado, error)
	// SetLatency actualiza latency_ms de forma oportunista (diagnóstico).
	SetLatency(ctx context.Context, clienteID int64, ms int) (*Estado, error)
	// Get devuelve el estado o nil si el cliente nunca fue tocado.
	Get(ctx context.Context, clienteID int64) (*Estado, error)
}

// ─── PGStore ───

type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (s *PGStore) Ensure(ctx context.Context, clienteID int64, mode string) (*Estado, error) {
	// fake_ip solo se asigna en el INSERT: el conflicto nunca la pisa.
	const q = `
		INSERT INTO router_estado (cliente_id, connected, mode, latency_ms, fake_ip, updated_at)
		VALUES ($1, false, $2, 0, $3, now())
		ON CONFLICT (cliente_id) DO UPDATE SET cliente_id = router_estado.cliente_id
		RETURNING cliente_id, connected, mode, latency_ms, fake_ip, updated_at
	`
	return s.scanRow(s.pool.QueryRow(ctx, q, clienteID, mode, FakeIP(clienteID)))
}

func (s *PGStore) SetConnected(ctx context.Context, clienteID int64, connected bool, mode string) (*Estado, error) {
	const q = `
		INSERT INTO router_estado (cliente_id, connected, mode, latency_ms, fake_ip, updated_at)
		VALUES ($1, $2, $3, 0, $4, now())
		ON CONFLICT (cliente_id) DO UPDATE SET connected = $2, updated_at = now()
		RETURNING cliente_id, connected, mode, latency_ms, fake_ip, updated_at
	`
	return s.scanRow(s.pool.QueryRow(ctx, q, clienteID, connected, mode, FakeIP(clienteID)))
}

func (s *PGStore) SetLatency(ctx context.Context, clienteID int64, ms int) (*Estado, error) {
	const q = `
		UPDATE router_estado SET latency_ms = $2, updated_at = now()
		WHERE cliente_id = $1
		RETURNING cliente_id, connected, mode, latency_ms, fake_ip, updated_at
	`
	est, err := s.scanRow(s.pool.QueryRow(ctx, q, clienteID, ms))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return est, err
}

func (s *PGStore) Get(ctx context.Context, clienteID int64) (*Estado, error) {
	const q = `
		SELECT cliente_id, connected, mode, latency_ms, fake_ip, updated_at
		FROM router_estado WHERE cliente_id = $1
	`
	est, err := s.scanRow(s.pool.QueryRow(ctx, q, clienteID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return est, err
}

func (s *PGStore) scanRow(row pgx.Row) (*Estado, error) {
	var e Estado
	err := row.Scan(&e.ClienteID, &e.Connected, &e.Mode, &e.LatencyMs, &e.FakeIP, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ─── MemStore ───

// MemStore guarda el estado en memoria para desarrollo y tests, con el mismo
// invariante single-writer-per-entity que la tabla (un lock por registro
// colapsado en un lock del mapa: las mutaciones por cliente se serializan).
type MemStore struct {
	mu   sync.Mutex
	rows map[int64]*Estado
}

func NewMemStore() *MemStore { return &MemStore{rows: make(map[int64]*Estado)} }

func (s *MemStore) Ensure(_ context.Context, clienteID int64, mode string) (*Estado, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(clienteID, mode), nil
}

func (s *MemStore) ensureLocked(clienteID int64, mode string) *Estado {
	if e, ok := s.rows[clienteID]; ok {
		cp := *e
		return &cp
	}
	e := &Estado{
		ClienteID: clienteID,
		Mode:      mode,
		FakeIP:    FakeIP(clienteID),
		UpdatedAt: time.Now().UTC(),
	}
	s.rows[clienteID] = e
	cp := *e
	return &cp
}

func (s *MemStore) SetConnected(_ context.Context, clienteID int64, connected bool, mode string) (*Estado, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(clienteID, mode)
	e := s.rows[clienteID]
	e.Connected = connected
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

func (s *MemStore) SetLatency(_ context.Context, clienteID int64, ms int) (*Estado, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[clienteID]
	if !ok {
		return nil, nil
	}
	e.LatencyMs = ms
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

func (s *MemStore) Get(_ context.Context, clienteID int64) (*Estado, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.rows[clienteID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}
