package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
)

// FFProbe extracts audio duration by invoking ffprobe on the byte stream
type FFProbe struct {
	cmd string
}

// NewFFProbe creates prober instance
func NewFFProbe() (*FFProbe, error) {
	return &FFProbe{cmd: "ffprobe"}, nil
}

// Duration returns audio length in seconds
func (p *FFProbe) Duration(ctx context.Context, name string, r io.Reader) (float64, error) {
	cmd := exec.CommandContext(ctx, p.cmd, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", "-")
	cmd.Stdin = r
	var outB, errB bytes.Buffer
	cmd.Stdout = &outB
	cmd.Stderr = &errB
	if err := cmd.Run(); err != nil {
		goapp.Log.Error().Str("stderr", errB.String()).Msg("ffprobe failed")
		return 0, fmt.Errorf("can't probe '%s': %w", name, err)
	}
	res, err := strconv.ParseFloat(strings.TrimSpace(outB.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse duration of '%s': %w", name, err)
	}
	if res <= 0 {
		return 0, fmt.Errorf("zero duration for '%s'", name)
	}
	return res, nil
}
