package status

import (
	"github.com/airenas/scribe/internal/pkg/apperr"
)

// State represents project lifecycle state derived from the persisted columns
type State int

const (
	// Clean - no lock, no error, segmentation still revisable
	Clean State = iota + 1
	// Locked - a job or multi-step operation owns the project
	Locked
	// Errored - last operation failed, error must be cleared before proceeding
	Errored
	// Assigned - tasks materialized, segmentation frozen
	Assigned
)

var stateName = map[State]string{Clean: "CLEAN", Locked: "LOCKED", Errored: "ERRORED", Assigned: "ASSIGNED"}

func (st State) String() string {
	return stateName[st]
}

// Of derives the state from the assigned/jobID/errStatus column triple.
// Lock takes precedence over error, error over assignment.
func Of(assigned bool, jobID, errStatus string) State {
	if jobID != "" {
		return Locked
	}
	if errStatus != "" {
		return Errored
	}
	if assigned {
		return Assigned
	}
	return Clean
}

// Phase tags stored in job_id while a multi-step operation holds the lock.
// Unlock recovery keys its compensating cleanup on these values.
const (
	PhaseUpload  = "upload_audio"
	PhaseAssign  = "assign_tasks"
	PhaseDiarize = "diarize_audio"
	// PhaseTaskSuffix marks a per-task submission phase, e.g. "diarize_task"
	PhaseTaskSuffix = "_task"
)

// Operation names the lifecycle operations guarded by the state machine
type Operation int

const (
	// OpUpload - upload or replace project audio
	OpUpload Operation = iota + 1
	// OpSave - save segmentation before assignment
	OpSave
	// OpAssign - materialize tasks
	OpAssign
	// OpUpdate - post-assignment assignee/meta update
	OpUpdate
	// OpDiarize - submit whole-project diarization
	OpDiarize
	// OpSubmitJob - submit a per-task speech job
	OpSubmitJob
	// OpDelete - delete the project
	OpDelete
	// OpUnlock - recover from Locked or Errored
	OpUnlock
)

var opName = map[Operation]string{OpUpload: "upload_audio", OpSave: "save_project", OpAssign: "assign_tasks",
	OpUpdate: "update_project", OpDiarize: "diarize_audio", OpSubmitJob: "submit_job", OpDelete: "delete_project",
	OpUnlock: "unlock_project"}

func (op Operation) String() string {
	return opName[op]
}

// CanStart is the single transition authority: it decides whether an operation
// may begin on a project in the given state. jobID/errStatus are passed through
// for diagnosable conflict messages.
func CanStart(op Operation, st State, jobID, errStatus string) error {
	switch st {
	case Locked:
		if op == OpUnlock {
			return nil
		}
		return apperr.New(apperr.Conflict, "a job with id '%s' is already pending on this project", jobID)
	case Errored:
		if op == OpUnlock || op == OpDelete {
			return nil
		}
		return apperr.New(apperr.PreviousJob, "previous job failed: %s", errStatus)
	case Assigned:
		switch op {
		case OpUpdate, OpSubmitJob, OpDelete:
			return nil
		case OpUnlock:
			return apperr.New(apperr.Conflict, "project is not locked")
		}
		return apperr.New(apperr.Conflict, "project tasks are already assigned")
	case Clean:
		switch op {
		case OpUpdate:
			return apperr.New(apperr.Conflict, "project tasks are not assigned yet")
		case OpSubmitJob:
			return apperr.New(apperr.Conflict, "project tasks are not assigned yet")
		case OpUnlock:
			return apperr.New(apperr.Conflict, "project is not locked")
		}
		return nil
	}
	return apperr.New(apperr.Internal, "unknown state %d", st)
}
