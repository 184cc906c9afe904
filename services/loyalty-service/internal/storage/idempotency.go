package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrIdempotencyScope = errors.New("idempotency key was used for a different request")

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	Scope           string
	StatusCode      int
	ResponsePayload []byte
}

// Completed reports whether a response was stored for the key.
func (r IdempotencyRecord) Completed() bool {
	return r.StatusCode != 0
}

// LockIdempotencyKey claims (business, key) for the duration of tx. The returned
// record carries the stored response when a previous request finished. A key
// first used with another scope (method and path) returns ErrIdempotencyScope.
func (r *Repository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key, scope string) (IdempotencyRecord, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := tx.Exec(ctx, `
			INSERT INTO loyalty_idempotency_keys (business_id, idempotency_key, request_scope)
			VALUES ($1, $2, $3)
			ON CONFLICT (business_id, idempotency_key) DO NOTHING
		`, businessID, key, scope); err != nil {
			return IdempotencyRecord{}, err
		}
		rec, err = r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	}
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if rec.Scope != scope {
		return IdempotencyRecord{}, ErrIdempotencyScope
	}
	return rec, nil
}

func (r *Repository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, businessID, key string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE loyalty_idempotency_keys
		SET status_code = $3,
			response_payload = $4,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, statusCode, response)
	return err
}

func (r *Repository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var status *int
	err := tx.QueryRow(ctx, `
		SELECT business_id, idempotency_key, request_scope, status_code, response_payload
		FROM loyalty_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&rec.BusinessID, &rec.IdempotencyKey, &rec.Scope, &status, &rec.ResponsePayload)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if status != nil {
		rec.StatusCode = *status
	}
	return rec, nil
}
