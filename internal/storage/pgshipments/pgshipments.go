package pgshipments

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate накатывает встроенные goose-миграции через database/sql-обёртку над пулом.
func (s *Storage) migrate() error {
	sqlDB := stdlib.OpenDBFromPool(s.db)
	defer sqlDB.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "goose dialect")
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return errors.Wrap(err, "goose up")
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.Ping(ctx), "ping pg")
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
