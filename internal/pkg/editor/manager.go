package editor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/messages"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/postgres"
	"github.com/airenas/scribe/internal/pkg/status"
	"github.com/airenas/scribe/internal/pkg/storage"
)

// DB provides task persistence functionality
type DB interface {
	BeginExclusive(ctx context.Context) (postgres.Tx, error)
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	LoadTask(ctx context.Context, projectID string, taskID int) (*persistence.Task, error)
	ListEditorTasks(ctx context.Context, user string) ([]persistence.Task, error)
}

// Filer loads audio files
type Filer interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// Repo provides text version control
type Repo interface {
	Check(dir, commitID string) error
	Commit(dir, file, message string) (string, time.Time, error)
	Revert(dir, file, commitID string) (string, time.Time, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Speech cancels jobs on the external speech processing service
type Speech interface {
	Cancel(ctx context.Context, jobID string) error
}

// Data keeps dependencies of the editor task manager
type Data struct {
	DB        DB
	Filer     Filer
	Repo      Repo
	MsgSender MsgSender
	Speech    Speech
	Paths     *storage.Paths
}

// Manager implements editor/collator task operations
type Manager struct {
	d *Data
}

// NewManager creates Manager instance
func NewManager(data *Data) (*Manager, error) {
	if data == nil {
		return nil, errors.New("no data")
	}
	if data.DB == nil {
		return nil, errors.New("no DB")
	}
	if data.Filer == nil {
		return nil, errors.New("no filer")
	}
	if data.Repo == nil {
		return nil, errors.New("no repo")
	}
	if data.MsgSender == nil {
		return nil, errors.New("no msg sender")
	}
	if data.Speech == nil {
		return nil, errors.New("no speech client")
	}
	if data.Paths == nil {
		return nil, errors.New("no paths")
	}
	return &Manager{d: data}, nil
}

// Grouped is the user's task list split by what blocks work on each task
type Grouped struct {
	// Pending tasks wait for an external speech job
	Pending []persistence.Task `json:"pending"`
	// Errored tasks carry a failure that must be cleared first
	Errored []persistence.Task `json:"errored"`
	// Open tasks are editable now
	Open []persistence.Task `json:"open"`
}

// List returns all tasks where the user is the editor or collator, grouped by workability
func (m *Manager) List(ctx context.Context, user string) (*Grouped, error) {
	tasks, err := m.d.DB.ListEditorTasks(ctx, user)
	if err != nil {
		return nil, err
	}
	res := &Grouped{Pending: []persistence.Task{}, Errored: []persistence.Task{}, Open: []persistence.Task{}}
	for _, t := range tasks {
		switch {
		case t.JobID.Valid && t.JobID.String != "":
			res.Pending = append(res.Pending, t)
		case t.ErrStatus.Valid && t.ErrStatus.String != "":
			res.Errored = append(res.Errored, t)
		default:
			res.Open = append(res.Open, t)
		}
	}
	return res, nil
}

// Audio returns the project audio stream and the task's time range within it
func (m *Manager) Audio(ctx context.Context, projectID string, taskID int) (io.ReadSeekCloser, float64, float64, error) {
	t, err := m.d.DB.LoadTask(ctx, projectID, taskID)
	if err != nil {
		return nil, 0, 0, err
	}
	p, err := m.d.DB.LoadProject(ctx, projectID)
	if err != nil {
		return nil, 0, 0, err
	}
	if !p.AudioFile.Valid {
		return nil, 0, 0, apperr.New(apperr.NotFound, "no audio uploaded for project '%s'", projectID)
	}
	r, err := m.d.Filer.LoadFile(ctx, p.AudioFile.String)
	if err != nil {
		return nil, 0, 0, err
	}
	return r, t.Start, t.End, nil
}

// Text returns the current task text
func (m *Manager) Text(ctx context.Context, projectID string, taskID int) (string, error) {
	t, err := m.d.DB.LoadTask(ctx, projectID, taskID)
	if err != nil {
		return "", err
	}
	if !t.TextFile.Valid {
		return "", apperr.New(apperr.NotFound, "task %d of project '%s' has no text yet", taskID, projectID)
	}
	b, err := os.ReadFile(t.TextFile.String)
	if err != nil {
		return "", fmt.Errorf("can't read text: %w", err)
	}
	return string(b), nil
}

// SaveText stores new task text: verify the working tree matches the stored
// commit, write the file, commit and persist the new commit id. A dirty tree
// means a previous save was interrupted and surfaces as a task error.
func (m *Manager) SaveText(ctx context.Context, projectID string, taskID int, user, text string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	t, err := m.checkWritable(ctx, tx, projectID, taskID, user)
	if err != nil {
		return err
	}
	dir := m.d.Paths.TaskDir(projectID, taskID)
	commitID, at, repoErr := m.saveToRepo(dir, t.CommitID.String, text, user)
	if repoErr != nil {
		goapp.Log.Error().Err(repoErr).Str("ID", projectID).Int("taskID", taskID).Msg("text save failed")
		if err := tx.ClearTaskLock(ctx, projectID, taskID, repoErr.Error()); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("can't commit: %w", err)
		}
		return apperr.Wrap(apperr.Internal, repoErr, "can't save text")
	}
	if err := tx.UpdateTaskCommit(ctx, projectID, taskID, commitID, at); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Str("commitID", commitID).Msg("saved text")
	return nil
}

func (m *Manager) saveToRepo(dir, commitID, text, user string) (string, time.Time, error) {
	if err := m.d.Repo.Check(dir, commitID); err != nil {
		return "", time.Time{}, err
	}
	fn := dir + string(os.PathSeparator) + storage.TextFileName
	if err := os.WriteFile(fn, []byte(text), 0600); err != nil {
		return "", time.Time{}, fmt.Errorf("can't write text: %w", err)
	}
	return m.d.Repo.Commit(dir, storage.TextFileName, "saved by "+user)
}

// Revert restores the task text to an earlier commit. The restored content is
// recommitted on top, history is never rewritten.
func (m *Manager) Revert(ctx context.Context, projectID string, taskID int, user, commitID string) error {
	if commitID == "" {
		return apperr.New(apperr.BadRequest, "no commit id")
	}
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	_, err = m.checkWritable(ctx, tx, projectID, taskID, user)
	if err != nil {
		return err
	}
	dir := m.d.Paths.TaskDir(projectID, taskID)
	newCommitID, at, repoErr := m.d.Repo.Revert(dir, storage.TextFileName, commitID)
	if repoErr != nil {
		return apperr.Wrap(apperr.Internal, repoErr, "can't revert text")
	}
	if err := tx.UpdateTaskCommit(ctx, projectID, taskID, newCommitID, at); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Str("commitID", newCommitID).Msg("reverted text")
	return nil
}

// Done hands the task over to the collator for review
func (m *Manager) Done(ctx context.Context, projectID string, taskID int, user string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	t, err := m.checkWritable(ctx, tx, projectID, taskID, user)
	if err != nil {
		return err
	}
	if t.Ownership != persistence.OwnershipEditor {
		return apperr.New(apperr.Conflict, "task %d is already handed over", taskID)
	}
	if err := tx.SetTaskOwnership(ctx, projectID, taskID, persistence.OwnershipCollator); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	m.sendTaskEvent(ctx, projectID, taskID, t.Editor.String)
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Msg("task done")
	return nil
}

// Unlock is the task recovery operation: it frees a task whose external job
// callback never arrived. The job is cancelled best-effort, stale routing rows
// are dropped and the lock ends as a clearable error status.
func (m *Manager) Unlock(ctx context.Context, projectID string, taskID int) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	t, err := tx.TaskForUpdate(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	if !t.JobID.Valid || t.JobID.String == "" {
		return apperr.New(apperr.Conflict, "task %d is not locked", taskID)
	}
	jobID := t.JobID.String
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}

	errStatus := "interrupted: " + jobID
	if !strings.HasSuffix(jobID, status.PhaseTaskSuffix) {
		// a real service job id, not a phase tag left by a failed submission
		if err := m.d.Speech.Cancel(ctx, jobID); err != nil {
			goapp.Log.Warn().Err(err).Str("jobID", jobID).Msg("can't cancel external job")
		}
		errStatus = "cancelled pending job: " + jobID
	}

	tx2, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx2)
	if err := tx2.DeleteTaskRouting(ctx, projectID, taskID); err != nil {
		return err
	}
	if err := tx2.ClearTaskLock(ctx, projectID, taskID, errStatus); err != nil {
		return err
	}
	if err := tx2.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	msg := &messages.TaskMessage{
		ProjectMessage: *messages.NewProjectMessage(projectID, messages.EventUnlocked, ""), TaskID: taskID}
	if err := m.d.MsgSender.SendMessage(ctx, msg, messages.StatusChange); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", projectID).Msg("can't send status msg")
	}
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Str("jobID", jobID).Msg("unlocked task")
	return nil
}

// ClearError drops the task's error status so work can continue
func (m *Manager) ClearError(ctx context.Context, projectID string, taskID int) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	t, err := tx.TaskForUpdate(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	if t.JobID.Valid && t.JobID.String != "" {
		return apperr.New(apperr.Conflict, "a job with id '%s' is already pending on this task", t.JobID.String)
	}
	if !t.ErrStatus.Valid || t.ErrStatus.String == "" {
		return apperr.New(apperr.Conflict, "task %d has no error", taskID)
	}
	if err := tx.ClearTaskLock(ctx, projectID, taskID, ""); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Msg("cleared task error")
	return nil
}

// checkWritable loads the task under write intent and verifies the user may change it now
func (m *Manager) checkWritable(ctx context.Context, tx postgres.Tx, projectID string, taskID int, user string) (*persistence.Task, error) {
	t, err := tx.TaskForUpdate(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	if t.JobID.Valid && t.JobID.String != "" {
		return nil, apperr.New(apperr.Conflict, "a job with id '%s' is already pending on this task", t.JobID.String)
	}
	if t.ErrStatus.Valid && t.ErrStatus.String != "" {
		return nil, apperr.New(apperr.PreviousJob, "previous job failed: %s", t.ErrStatus.String)
	}
	writer := t.Editor.String
	if t.Ownership == persistence.OwnershipCollator {
		writer = t.Collator.String
	}
	if user != writer {
		return nil, apperr.New(apperr.NotAuthorized, "task %d is not writable by '%s'", taskID, user)
	}
	return t, nil
}

func (m *Manager) sendTaskEvent(ctx context.Context, projectID string, taskID int, editor string) {
	msg := &messages.TaskMessage{
		ProjectMessage: *messages.NewProjectMessage(projectID, messages.EventTaskDone, ""),
		TaskID:         taskID, Editor: editor}
	if err := m.d.MsgSender.SendMessage(ctx, msg, messages.Inform); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", projectID).Msg("can't send inform msg")
	}
}

func rollback(ctx context.Context, tx postgres.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		goapp.Log.Warn().Err(err).Msg("can't rollback")
	}
}
