package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExpiredRoutingProvider selects routing tokens older than expiresAfter.
// A routing row normally dies with its callback - leftovers mean the external
// service never called back and the rows only invite stale one-shot URLs.
type ExpiredRoutingProvider struct {
	pool         *pgxpool.Pool
	expiresAfter time.Duration
}

// NewExpiredRoutingProvider creates provider instance
func NewExpiredRoutingProvider(pool *pgxpool.Pool, expiresAfter time.Duration) (*ExpiredRoutingProvider, error) {
	return &ExpiredRoutingProvider{pool: pool, expiresAfter: expiresAfter}, nil
}

// GetExpired returns project IDs having expired routing rows
func (db *ExpiredRoutingProvider) GetExpired(ctx context.Context) ([]string, error) {
	exp := time.Now().Add(-db.expiresAfter)
	goapp.Log.Info().Time("older than", exp).Msg("selecting old routing records...")
	rows, err := db.pool.Query(ctx, `SELECT project_id FROM incoming WHERE created < $1
		UNION SELECT project_id FROM outgoing WHERE created < $1`, exp)
	if err != nil {
		return nil, fmt.Errorf("can't select IDs: %w", err)
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var id string
		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("can't retrieve IDs: %w", err)
		}
		res = append(res, id)
	}
	return res, nil
}

// Clean deletes all routing rows for the project without touching its lock state
func (db *ExpiredRoutingProvider) Clean(ctx context.Context, id string) error {
	for _, t := range []string{"incoming", "outgoing"} {
		cmd, err := db.pool.Exec(ctx, `DELETE FROM `+t+` WHERE project_id = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, t, err)
		}
		goapp.Log.Info().Str("ID", id).Str("table", t).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	}
	return nil
}
