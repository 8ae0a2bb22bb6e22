package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persiste el ledger en una tabla Postgres.
// Cada servicio dueño tiene su propia tabla (idem_red, idem_clientes, idem_pagos)
// con PRIMARY KEY (key, scope): la reserva es un INSERT que gana o pierde por
// el unique constraint, nunca un check-then-insert.
type PGStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPGStore(pool *pgxpool.Pool, table string) *PGStore {
	return &PGStore{pool: pool, table: table}
}

func (s *PGStore) Reserve(ctx context.Context, key, scope string) (bool, *Record, error) {
	q := fmt.Sprintf(
		`INSERT INTO %s (key, scope, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (key, scope) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, q, key, scope)
	if err != nil {
		return false, nil, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil, nil
	}
	rec, err := s.Get(ctx, key, scope)
	return false, rec, err
}

func (s *PGStore) Complete(ctx context.Context, key, scope string, response []byte) error {
	q := fmt.Sprintf(`UPDATE %s SET response = $3 WHERE key = $1 AND scope = $2`, s.table)
	_, err := s.pool.Exec(ctx, q, key, scope, response)
	return err
}

func (s *PGStore) Release(ctx context.Context, key, scope string) error {
	// Solo reservas sin respuesta: un registro completado es inmutable.
	q := fmt.Sprintf(`DELETE FROM %s WHERE key = $1 AND scope = $2 AND response IS NULL`, s.table)
	_, err := s.pool.Exec(ctx, q, key, scope)
	return err
}

func (s *PGStore) Get(ctx context.Context, key, scope string) (*Record, error) {
	q := fmt.Sprintf(
		`SELECT key, scope, response, created_at FROM %s WHERE key = $1 AND scope = $2`, s.table)
	var rec Record
	var created time.Time
	err := s.pool.QueryRow(ctx, q, key, scope).Scan(&rec.Key, &rec.Scope, &rec.Response, &created)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = created
	return &rec, nil
}
