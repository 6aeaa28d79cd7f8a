package storage

import (
	"fmt"
	"path/filepath"
	"time"
)

// Paths derives storage locations for project artifacts
type Paths struct {
	// TextRoot is the local directory holding per-task text repositories
	TextRoot string
}

// NewPaths creates Paths instance
func NewPaths(textRoot string) (*Paths, error) {
	if textRoot == "" {
		return nil, fmt.Errorf("no text root dir")
	}
	return &Paths{TextRoot: textRoot}, nil
}

// AudioName makes the audio object name: per-user/date/project path plus an opaque token
func AudioName(owner string, at time.Time, projectID, token string) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s/%s", owner, at.Year(), int(at.Month()), at.Day(), projectID, token)
}

// ProjectDir is the local directory holding all task text dirs of the project
func (p *Paths) ProjectDir(projectID string) string {
	return filepath.Join(p.TextRoot, projectID)
}

// TaskDir is the local per-task text repository directory
func (p *Paths) TaskDir(projectID string, taskID int) string {
	return filepath.Join(p.TextRoot, projectID, fmt.Sprintf("%03d", taskID))
}

// TextFileName is the text artifact base name inside a task dir
const TextFileName = "text"
