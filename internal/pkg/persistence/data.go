package persistence

import (
	"database/sql"
	"time"
)

type (

	// Project table row
	Project struct {
		ID            string
		Name          string
		Category      string
		Owner         string
		AudioFile     sql.NullString
		AudioDuration sql.NullFloat64
		CreationYear  int
		Created       time.Time
		Updated       sql.NullTime
		Assigned      bool
		JobID         sql.NullString
		ErrStatus     sql.NullString
	}

	// Task table row, identity (ProjectID, TaskID), TaskID is the 0-based ordinal by start time
	Task struct {
		ProjectID    string
		TaskID       int
		Editor       sql.NullString
		Collator     sql.NullString
		Start        float64
		End          float64
		Language     sql.NullString
		TextFile     sql.NullString
		Created      sql.NullTime
		Modified     sql.NullTime
		CommitID     sql.NullString
		Ownership    int
		CreationYear int
		JobID        sql.NullString
		ErrStatus    sql.NullString
	}

	// Incoming - single use routing row awaiting an external service result
	Incoming struct {
		URL         string
		ProjectID   string
		TaskID      sql.NullInt32
		ServiceType string
		Created     time.Time
	}

	// Outgoing - single use routing row serving audio to the external service
	Outgoing struct {
		URL       string
		ProjectID string
		TaskID    sql.NullInt32
		AudioFile string
		Start     sql.NullFloat64
		End       sql.NullFloat64
		Created   time.Time
	}
)

// Task ownership values
const (
	// OwnershipEditor - editor has write access
	OwnershipEditor = 0
	// OwnershipCollator - collator has write access, task is read-only for the editor
	OwnershipCollator = 1
)
