package storage

import (
	"context"
	"time"
)

type APIClient struct {
	ClientID   string
	BusinessID string
	SecretHash string
	Role       string
	Name       string
	DisabledAt *time.Time
	CreatedAt  time.Time
}

func (r *Repository) CreateClient(ctx context.Context, c APIClient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_clients (client_id, business_id, secret_hash, role, name)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ClientID, c.BusinessID, c.SecretHash, c.Role, c.Name)
	return err
}

func (r *Repository) GetClient(ctx context.Context, clientID string) (APIClient, error) {
	var c APIClient
	err := r.pool.QueryRow(ctx, `
		SELECT client_id, business_id, secret_hash, role, name, disabled_at, created_at
		FROM api_clients
		WHERE client_id = $1
	`, clientID).Scan(&c.ClientID, &c.BusinessID, &c.SecretHash, &c.Role, &c.Name, &c.DisabledAt, &c.CreatedAt)
	if err != nil {
		return APIClient{}, notFound(err)
	}
	return c, nil
}
