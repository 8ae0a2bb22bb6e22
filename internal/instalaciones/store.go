package instalaciones

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persiste instalaciones. Las instalaciones nunca se borran.
type Store interface {
	Create(ctx context.Context, inst *Instalacion) (*Instalacion, error)
	Get(ctx context.Context, id int64) (*Instalacion, error)
	// SetEstado muta solo el estado (commit atómico por fila).
	SetEstado(ctx context.Context, id int64, estado string) (*Instalacion, error)
	// SetEvidencias persiste evidencias y notas sin tocar el estado.
	SetEvidencias(ctx context.Context, id int64, evidencias []string, notas string) (*Instalacion, error)
	ListByCliente(ctx context.Context, clienteID int64, limit int) ([]*Instalacion, error)
	ListAgenda(ctx context.Context, zona, estado string, limit int) ([]*Instalacion, error)
}

// ─── PGStore ───

type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

const instCols = `id, cliente_id, ventana, zona, estado, evidencias, notas, creado_en`

func (s *PGStore) Create(ctx context.Context, inst *Instalacion) (*Instalacion, error) {
	const q = `
		INSERT INTO instalaciones (cliente_id, ventana, zona, estado, evidencias, notas, creado_en)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING ` + instCols
	ev, err := json.Marshal(emptySlice(inst.Evidencias))
	if err != nil {
		return nil, err
	}
	return scanInst(s.pool.QueryRow(ctx, q,
		inst.ClienteID, inst.Ventana, inst.Zona, inst.Estado, string(ev), inst.Notas))
}

func (s *PGStore) Get(ctx context.Context, id int64) (*Instalacion, error) {
	const q = `SELECT ` + instCols + ` FROM instalaciones WHERE id = $1`
	inst, err := scanInst(s.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

func (s *PGStore) SetEstado(ctx context.Context, id int64, estado string) (*Instalacion, error) {
	const q = `UPDATE instalaciones SET estado = $2 WHERE id = $1 RETURNING ` + instCols
	inst, err := scanInst(s.pool.QueryRow(ctx, q, id, estado))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

func (s *PGStore) SetEvidencias(ctx context.Context, id int64, evidencias []string, notas string) (*Instalacion, error) {
	const q = `UPDATE instalaciones SET evidencias = $2, notas = $3 WHERE id = $1 RETURNING ` + instCols
	ev, err := json.Marshal(emptySlice(evidencias))
	if err != nil {
		return nil, err
	}
	inst, err := scanInst(s.pool.QueryRow(ctx, q, id, string(ev), notas))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

func (s *PGStore) ListByCliente(ctx context.Context, clienteID int64, limit int) ([]*Instalacion, error) {
	const q = `SELECT ` + instCols + `
		FROM instalaciones WHERE cliente_id = $1
		ORDER BY creado_en DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, clienteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (s *PGStore) ListAgenda(ctx context.Context, zona, estado string, limit int) ([]*Instalacion, error) {
	const q = `SELECT ` + instCols + `
		FROM instalaciones
		WHERE ($1 = '' OR zona = $1) AND ($2 = '' OR estado = $2)
		ORDER BY creado_en ASC LIMIT $3`
	rows, err := s.pool.Query(ctx, q, zona, estado, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Instalacion, error) {
	var out []*Instalacion
	for rows.Next() {
		inst, err := scanInst(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInst(row pgx.Row) (*Instalacion, error) {
	var inst Instalacion
	var ev string
	err := row.Scan(&inst.ID, &inst.ClienteID, &inst.Ventana, &inst.Zona,
		&inst.Estado, &ev, &inst.Notas, &inst.CreadoEn)
	if err != nil {
		return nil, err
	}
	// Evidencias guardadas como lista serializada; un blob ilegible degrada a vacía.
	if err := json.Unmarshal([]byte(ev), &inst.Evidencias); err != nil {
		inst.Evidencias = []string{}
	}
	return &inst, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ─── MemStore ───

type MemStore struct {
	mu   sync.Mutex
	rows map[int64]*Instalacion
	next int64
}

func NewMemStore() *MemStore { return &MemStore{rows: make(map[int64]*Instalacion), next: 1} }

func (s *MemStore) Create(_ context.Context, inst *Instalacion) (*Instalacion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	cp.ID = s.next
	cp.CreadoEn = time.Now().UTC()
	if cp.Evidencias == nil {
		cp.Evidencias = []string{}
	}
	s.next++
	s.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemStore) Get(_ context.Context, id int64) (*Instalacion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.rows[id]; ok {
		cp := *inst
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) SetEstado(_ context.Context, id int64, estado string) (*Instalacion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	inst.Estado = estado
	cp := *inst
	return &cp, nil
}

func (s *MemStore) SetEvidencias(_ context.Context, id int64, evidencias []string, notas string) (*Instalacion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	inst.Evidencias = append([]string(nil), evidencias...)
	inst.Notas = notas
	cp := *inst
	return &cp, nil
}

func (s *MemStore) ListByCliente(_ context.Context, clienteID int64, limit int) ([]*Instalacion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Instalacion
	for _, inst := range s.rows {
		if inst.ClienteID == clienteID {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreadoEn.After(out[j].CreadoEn) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ListAgenda(_ context.Context, zona, estado string, limit int) ([]*Instalacion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Instalacion
	for _, inst := range s.rows {
		if (zona == "" || inst.Zona == zona) && (estado == "" || inst.Estado == estado) {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreadoEn.Before(out[j].CreadoEn) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
