package utils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

const maxRetries = 2

// CreateHandler wraps a typed message handler into a gue work func
func CreateHandler[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error) gue.WorkFunc {
	return func(ctx context.Context, j *gue.Job) error {
		var m TM
		if err := json.Unmarshal(j.Args, &m); err != nil {
			return fmt.Errorf("can't unmarshal msg: %w", err)
		}
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")
		if j.ErrorCount > maxRetries {
			goapp.Log.Error().Int32("count", j.ErrorCount).Str("lastError", j.LastError.String).Msg("msg failed, drop")
			return nil
		}
		return hf(ctx, &m, data)
	}
}
