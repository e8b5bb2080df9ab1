package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/config"
)

// Querier is the statement surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Database is what the order store needs from a connection pool.
type Database interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	// Listen holds one connection subscribed to channel until the returned
	// Notifications is closed.
	Listen(ctx context.Context, channel string) (Notifications, error)
}

type Notifications interface {
	// Wait blocks until a notification arrives and returns its payload.
	Wait(ctx context.Context) (string, error)
	Close()
}

// Pool is a pgx pool with LISTEN support.
type Pool struct {
	*pgxpool.Pool
}

var _ Database = (*Pool)(nil)

const connectAttempts = 5

// Connect opens the pool and pings it, retrying while the database is still
// starting up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, lgr logger.Logger) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	for attempt := 1; ; attempt++ {
		pool, err := open(ctx, poolConfig)
		if err == nil {
			return &Pool{Pool: pool}, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
		}

		wait := time.Duration(attempt) * 2 * time.Second
		lgr.Warn("db_connection_failed", fmt.Sprintf("Failed to connect to database, retrying in %v", wait), "startup", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func open(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *Pool) Listen(ctx context.Context, channel string) (Notifications, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	return &listener{conn: conn}, nil
}

type listener struct {
	conn *pgxpool.Conn
}

func (l *listener) Wait(ctx context.Context) (string, error) {
	n, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

// Close drops the connection instead of returning it to the pool, it is
// still subscribed.
func (l *listener) Close() {
	conn := l.conn.Hijack()
	_ = conn.Close(context.Background())
}
