package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SetBeforeDecrement installs a hook that runs inside PlaceOrder after the
// cart lines were validated and before stock is decremented.
func (s *Store) SetBeforeDecrement(fn func(ctx context.Context, tx *sqlx.Tx) error) {
	s.beforeDecrement = fn
}

func (s *Store) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	if s.driver != DriverSQLite {
		return true, nil
	}
	var on bool
	err := s.db.GetContext(ctx, &on, "PRAGMA foreign_keys")
	return on, err
}

var SQLiteDSN = sqliteDSN
