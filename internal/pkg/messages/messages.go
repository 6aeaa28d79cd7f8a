package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "SCRIBE/"
	// Inform queue name - email notifications on lifecycle events
	Inform = st + "Inform"
	// StatusChange queue name - project state change events for subscribers
	StatusChange = st + "StatusChange"
)

// Project lifecycle event names passed in messages
const (
	EventCreated      = "CREATED"
	EventAssigned     = "ASSIGNED"
	EventDiarized     = "DIARIZED"
	EventJobFinished  = "JOB_FINISHED"
	EventJobFailed    = "JOB_FAILED"
	EventUnlocked     = "UNLOCKED"
	EventTaskDone     = "TASK_DONE"
)

// ProjectMessage is the main message passing through the scribe event queues
type ProjectMessage struct {
	amessages.QueueMessage
	Event string `json:"event,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// TaskMessage carries task level events
type TaskMessage struct {
	ProjectMessage
	TaskID int    `json:"taskID"`
	Editor string `json:"editor,omitempty"`
}

// NewProjectMessage creates an event message for a project
func NewProjectMessage(id, event, owner string) *ProjectMessage {
	return &ProjectMessage{QueueMessage: amessages.QueueMessage{ID: id}, Event: event, Owner: owner}
}
