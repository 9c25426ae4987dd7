package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andy/timebill/internal/domain"
)

const clientColumns = `id, owner_id, name, email, company, is_active, created_at, updated_at`

// ClientRepo is a SQLite implementation of ClientRepository
type ClientRepo struct {
	db DBTX
}

// NewClientRepo creates a new ClientRepo
func NewClientRepo(q DBTX) *ClientRepo {
	return &ClientRepo{db: q}
}

// Create inserts a new client into the database
func (r *ClientRepo) Create(ctx context.Context, client *domain.Client) error {
	if err := client.Validate(); err != nil {
		return fmt.Errorf("invalid client: %w", err)
	}

	query := `INSERT INTO clients (` + clientColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.OwnerID,
		client.Name,
		client.Email,
		client.Company,
		client.IsActive,
		formatTime(client.CreatedAt),
		formatTime(client.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

// GetByID retrieves an active client owned by ownerID
func (r *ClientRepo) GetByID(ctx context.Context, ownerID, id string) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = ? AND owner_id = ? AND is_active = 1`
	return r.getOne(ctx, id, query, id, ownerID)
}

// GetByName retrieves an active client by exact name
func (r *ClientRepo) GetByName(ctx context.Context, ownerID, name string) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients
		WHERE owner_id = ? AND name = ? AND is_active = 1
		ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, name, query, ownerID, name)
}

// List retrieves the owner's active clients ordered by name
func (r *ClientRepo) List(ctx context.Context, ownerID string) ([]*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_id = ? AND is_active = 1 ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]*domain.Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

func (r *ClientRepo) getOne(ctx context.Context, key, query string, args ...any) (*domain.Client, error) {
	client, err := scanClient(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("client", key)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

func scanClient(row rowScanner) (*domain.Client, error) {
	client := &domain.Client{}
	var createdAt, updatedAt string

	err := row.Scan(
		&client.ID,
		&client.OwnerID,
		&client.Name,
		&client.Email,
		&client.Company,
		&client.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if client.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if client.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return client, nil
}
