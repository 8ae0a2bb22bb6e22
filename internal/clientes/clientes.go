// Package clientes expone el alta mínima de clientes que participa en las
// sagas: crear (idempotente), inactivar (blanco de compensación) y consulta.
// El CRUD completo de clientes vive en otro servicio; aquí solo lo necesario
// para la capa de confiabilidad.
package clientes

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EstatusActivo   = "activo"
	EstatusInactivo = "inactivo"
)

// Cliente es el registro mínimo de un abonado.
type Cliente struct {
	ID       int64  `json:"id"`
	Nombre   string `json:"nombre"`
	RFC      string `json:"rfc"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Estatus  string `json:"estatus"`
	Zona     string `json:"zona"`
}

var (
	rfcRegex   = regexp.MustCompile(`^[A-Za-z&Ññ]{3,4}\d{6}[A-Za-z0-9]{3}$`)
	phoneRegex = regexp.MustCompile(`^\+?\d{10,15}$`)
)

// ValidRFC valida el formato de RFC mexicano.
func ValidRFC(rfc string) bool {
	return rfcRegex.MatchString(strings.TrimSpace(rfc))
}

// ValidTelefono valida un teléfono de 10 a 15 dígitos (espacios y guiones se toleran).
func ValidTelefono(tel string) bool {
	tel = strings.ReplaceAll(strings.ReplaceAll(tel, " ", ""), "-", "")
	return phoneRegex.MatchString(tel)
}

// Store persiste clientes. Los clientes nunca se borran: inactivar solo
// cambia el estatus.
type Store interface {
	// Create inserta un cliente activo. Si el RFC ya existe devuelve el
	// registro previo con existed=true (idempotencia por RFC).
	Create(ctx context.Context, c *Cliente) (out *Cliente, existed bool, err error)
	Get(ctx context.Context, id int64) (*Cliente, error)
	SetEstatus(ctx context.Context, id int64, estatus string) (*Cliente, error)
}

// ─── PGStore ───

type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

const cliCols = `id, nombre, rfc, email, telefono, estatus, zona`

func (s *PGStore) Create(ctx context.Context, c *Cliente) (*Cliente, bool, error) {
	// El unique constraint en rfc decide: DO NOTHING y releer es más simple
	// que pelear con el error de integridad.
	const ins = `
		INSERT INTO clientes (nombre, rfc, email, telefono, estatus, zona, creado_en)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (rfc) DO NOTHING
		RETURNING ` + cliCols
	var out Cliente
	err := s.pool.QueryRow(ctx, ins,
		c.Nombre, strings.ToUpper(c.RFC), c.Email, c.Telefono, EstatusActivo, c.Zona).
		Scan(&out.ID, &out.Nombre, &out.RFC, &out.Email, &out.Telefono, &out.Estatus, &out.Zona)
	if err == nil {
		return &out, false, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}
	const sel = `SELECT ` + cliCols + ` FROM clientes WHERE rfc = $1`
	err = s.pool.QueryRow(ctx, sel, strings.ToUpper(c.RFC)).
		Scan(&out.ID, &out.Nombre, &out.RFC, &out.Email, &out.Telefono, &out.Estatus, &out.Zona)
	if err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func (s *PGStore) Get(ctx context.Context, id int64) (*Cliente, error) {
	const q = `SELECT ` + cliCols + ` FROM clientes WHERE id = $1`
	var out Cliente
	err := s.pool.QueryRow(ctx, q, id).
		Scan(&out.ID, &out.Nombre, &out.RFC, &out.Email, &out.Telefono, &out.Estatus, &out.Zona)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PGStore) SetEstatus(ctx context.Context, id int64, estatus string) (*Cliente, error) {
	const q = `UPDATE clientes SET estatus = $2 WHERE id = $1 RETURNING ` + cliCols
	var out Cliente
	err := s.pool.QueryRow(ctx, q, id, estatus).
		Scan(&out.ID, &out.Nombre, &out.RFC, &out.Email, &out.Telefono, &out.Estatus, &out.Zona)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── MemStore ───

type MemStore struct {
	mu    sync.Mutex
	rows  map[int64]*Cliente
	byRFC map[string]int64
	next  int64
}

func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[int64]*Cliente), byRFC: make(map[string]int64), next: 1}
}

func (s *MemStore) Create(_ context.Context, c *Cliente) (*Cliente, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rfc := strings.ToUpper(c.RFC)
	if id, ok := s.byRFC[rfc]; ok {
		cp := *s.rows[id]
		return &cp, true, nil
	}
	cp := *c
	cp.ID = s.next
	cp.RFC = rfc
	cp.Estatus = EstatusActivo
	s.next++
	s.rows[cp.ID] = &cp
	s.byRFC[rfc] = cp.ID
	out := cp
	return &out, false, nil
}

func (s *MemStore) Get(_ context.Context, id int64) (*Cliente, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.rows[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) SetEstatus(_ context.Context, id int64, estatus string) (*Cliente, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	c.Estatus = estatus
	cp := *c
	return &cp, nil
}
