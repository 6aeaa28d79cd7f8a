package postgres

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner removes all DB records related with a project ID
type Cleaner struct {
	pool *pgxpool.Pool
}

// NewCleaner creates Cleaner instance
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	return &Cleaner{pool: pool}, nil
}

// Clean drops tasks, routing rows and the project row itself
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	for _, t := range []struct{ table, field string }{
		{"tasks", "project_id"}, {"incoming", "project_id"}, {"outgoing", "project_id"},
		{"email_lock", "id"}, {"projects", "id"}} {
		cmd, err := db.pool.Exec(ctx, `DELETE FROM `+t.table+` WHERE `+t.field+` = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, t.table, err)
		}
		goapp.Log.Info().Str("ID", id).Str("table", t.table).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	}
	return nil
}
