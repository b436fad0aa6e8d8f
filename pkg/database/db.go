package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB is the subset of *sqlx.DB the service uses, plus context-bound transactions.
type DB interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	PingContext(ctx context.Context) error
	Close() error
	Stats() sql.DBStats
	// Executor returns the transaction bound to ctx, or the pool when none is open.
	Executor(ctx context.Context) sqlx.ExtContext
	// WithinTx runs fn inside a transaction bound to the returned context. A transaction
	// already bound to ctx is joined instead of nesting.
	WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error
}

type ConnectionConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders a lib/pq keyword/value string. Every value is quoted so empty values and
// values with spaces or quotes survive parsing.
func (c ConnectionConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(c.Host), quoteDSN(c.Port), quoteDSN(c.User), quoteDSN(c.Password), quoteDSN(c.Name), quoteDSN(c.SSLMode))
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteDSN(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) *DatabaseInstance {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

// Connect opens and pings a postgres pool.
func Connect(ctx context.Context, cfg ConnectionConfig, logger ectologger.Logger) (*DatabaseInstance, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"host": cfg.Host,
			"port": cfg.Port,
			"name": cfg.Name,
		}).Error("failed to connect to database")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return NewDatabaseInstance(db, logger), nil
}

func (db *DatabaseInstance) Executor(ctx context.Context) sqlx.ExtContext {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Tx
	}
	return db.DB
}

func (db *DatabaseInstance) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	return WithinTx(ctx, db.logger, db.DB, opts, fn)
}
