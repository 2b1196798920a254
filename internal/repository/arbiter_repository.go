package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/utils"
)

// ArbiterRepo mirrors the 'arbiters' table.
type ArbiterRepo struct{ DB *sql.DB }

func NewArbiterRepo(db *sql.DB) *ArbiterRepo { return &ArbiterRepo{DB: db} }

// Create inserts an arbiter account and returns its ID.
func (r *ArbiterRepo) Create(ctx context.Context, email, password, displayName string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO arbiters (email, password_hash, display_name) VALUES (?,?,?)",
		email, hash, displayName)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches an arbiter by normalized email.
func (r *ArbiterRepo) GetByEmail(ctx context.Context, email string) (model.Arbiter, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var a model.Arbiter
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,display_name,created_at,updated_at FROM arbiters WHERE email=? LIMIT 1",
		email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetByID fetches an arbiter by id.
func (r *ArbiterRepo) GetByID(ctx context.Context, id uint64) (model.Arbiter, error) {
	var a model.Arbiter
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,display_name,created_at,updated_at FROM arbiters WHERE id=? LIMIT 1",
		id).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
