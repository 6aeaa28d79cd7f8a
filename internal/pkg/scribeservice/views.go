package scribeservice

import (
	"time"

	"github.com/airenas/scribe/internal/pkg/editor"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/status"
)

type projectView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Owner         string     `json:"owner"`
	HasAudio      bool       `json:"hasAudio"`
	AudioDuration float64    `json:"audioDuration,omitempty"`
	Status        string     `json:"status"`
	JobID         string     `json:"jobID,omitempty"`
	ErrStatus     string     `json:"errStatus,omitempty"`
	Created       time.Time  `json:"created"`
	Updated       *time.Time `json:"updated,omitempty"`
}

type taskView struct {
	ProjectID string     `json:"projectID"`
	TaskID    int        `json:"taskID"`
	Editor    string     `json:"editor,omitempty"`
	Collator  string     `json:"collator,omitempty"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	Language  string     `json:"language,omitempty"`
	Ownership int        `json:"ownership"`
	CommitID  string     `json:"commitID,omitempty"`
	JobID     string     `json:"jobID,omitempty"`
	ErrStatus string     `json:"errStatus,omitempty"`
	Modified  *time.Time `json:"modified,omitempty"`
}

type groupedView struct {
	Pending []taskView `json:"pending"`
	Errored []taskView `json:"errored"`
	Open    []taskView `json:"open"`
}

func toProjectView(p *persistence.Project) projectView {
	res := projectView{ID: p.ID, Name: p.Name, Category: p.Category, Owner: p.Owner,
		HasAudio: p.AudioFile.Valid, AudioDuration: p.AudioDuration.Float64,
		Status:  status.Of(p.Assigned, p.JobID.String, p.ErrStatus.String).String(),
		JobID:   p.JobID.String, ErrStatus: p.ErrStatus.String, Created: p.Created}
	if p.Updated.Valid {
		u := p.Updated.Time
		res.Updated = &u
	}
	return res
}

func toTaskView(t *persistence.Task) taskView {
	res := taskView{ProjectID: t.ProjectID, TaskID: t.TaskID,
		Editor: t.Editor.String, Collator: t.Collator.String,
		Start: t.Start, End: t.End, Language: t.Language.String,
		Ownership: t.Ownership, CommitID: t.CommitID.String,
		JobID: t.JobID.String, ErrStatus: t.ErrStatus.String}
	if t.Modified.Valid {
		m := t.Modified.Time
		res.Modified = &m
	}
	return res
}

func toTaskViews(tasks []persistence.Task) []taskView {
	res := make([]taskView, 0, len(tasks))
	for i := range tasks {
		res = append(res, toTaskView(&tasks[i]))
	}
	return res
}

func toGroupedView(g *editor.Grouped) groupedView {
	return groupedView{Pending: toTaskViews(g.Pending), Errored: toTaskViews(g.Errored),
		Open: toTaskViews(g.Open)}
}
