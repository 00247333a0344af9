package repository

import (
	"context"
	"database/sql"
	"time"

	"electronic_load/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// StateRepo keeps the single last-known telemetry row.
type StateRepo interface {
	Save(ctx context.Context, s models.LoadState) error
	Load(ctx context.Context) (models.LoadState, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.LoadEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.LoadEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
