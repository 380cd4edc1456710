package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
)

// DB - общий интерфейс пула и транзакции pgx
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Transactor выполняет функцию в транзакции. Репозитории, вызванные с контекстом
// из fn, работают в той же транзакции.
type Transactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx открывает транзакцию, вызывает fn и фиксирует ее. При ошибке fn
// транзакция откатывается целиком.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// после Commit откат вернет ErrTxClosed, это ожидаемо
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// conn возвращает транзакцию из контекста, если она есть, иначе пул
func conn(ctx context.Context, db DB) DB {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

const uniqueViolation = "23505"

// translate приводит ошибки pgx к ошибкам приложения
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict("%s already exists", conflictSubject(entity, pgErr.ConstraintName))
	}
	return err
}

func conflictSubject(entity, constraint string) string {
	switch constraint {
	case "users_username_key":
		return "user with this username"
	case "users_email_key":
		return "user with this email"
	case "incident_categories_name_key":
		return "category with this name"
	}
	return entity
}
