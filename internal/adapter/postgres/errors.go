package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/YelzhanWeb/tableorders/internal/domain"
)

// classify maps driver errors onto domain errors. Connection loss, resource
// limits and operator intervention are transient, everything else is not.
func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if isTransient(err) {
		return fmt.Errorf("%w: failed to %s: %v", domain.ErrTransient, action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func isTransient(err error) bool {
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCode(pgErr.Code)
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// transientCode covers SQLSTATE classes 08 (connection), 53 (insufficient
// resources), 57P (operator intervention) and serialization failures.
func transientCode(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57P"):
		return true
	case code == "40001", code == "40P01":
		return true
	}
	return false
}
