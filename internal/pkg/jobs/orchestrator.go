package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/messages"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/postgres"
	"github.com/airenas/scribe/internal/pkg/speech"
	"github.com/airenas/scribe/internal/pkg/status"
	"github.com/airenas/scribe/internal/pkg/storage"
	"github.com/airenas/scribe/internal/pkg/utils"
)

// DB provides persistence functionality
type DB interface {
	BeginExclusive(ctx context.Context) (postgres.Tx, error)
}

// Filer loads audio files
type Filer interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// Speech submits jobs to the external speech processing service
type Speech interface {
	Submit(ctx context.Context, job *speech.Job) (string, error)
}

// Repo provides text version control
type Repo interface {
	Check(dir, commitID string) error
	Commit(dir, file, message string) (string, time.Time, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Data keeps dependencies of the job orchestrator
type Data struct {
	DB        DB
	Filer     Filer
	Speech    Speech
	Repo      Repo
	MsgSender MsgSender
	Paths     *storage.Paths
	// ExternalURL is this server's base for the one-shot callback URLs
	ExternalURL string
}

// Orchestrator runs the per-task external job cycle: submit, serve audio,
// reconcile the asynchronous result
type Orchestrator struct {
	d *Data
}

// NewOrchestrator creates Orchestrator instance
func NewOrchestrator(data *Data) (*Orchestrator, error) {
	if data == nil {
		return nil, errors.New("no data")
	}
	if data.DB == nil {
		return nil, errors.New("no DB")
	}
	if data.Filer == nil {
		return nil, errors.New("no filer")
	}
	if data.Speech == nil {
		return nil, errors.New("no speech client")
	}
	if data.Repo == nil {
		return nil, errors.New("no repo")
	}
	if data.MsgSender == nil {
		return nil, errors.New("no msg sender")
	}
	if data.Paths == nil {
		return nil, errors.New("no paths")
	}
	if data.ExternalURL == "" {
		return nil, errors.New("no external URL")
	}
	return &Orchestrator{d: data}, nil
}

// Result is the asynchronous callback payload of the speech service
type Result struct {
	CTM       string `json:"CTM,omitempty"`
	ErrStatus string `json:"errstatus,omitempty"`
}

// Submit starts an external speech job on one task. The task lock first holds
// a phase tag, replaced by the service job id once the submission succeeds.
func (o *Orchestrator) Submit(ctx context.Context, projectID string, taskID int, service ServiceType, params map[string]string) error {
	tx, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := tx.ProjectForUpdate(ctx, projectID)
	if err != nil {
		return err
	}
	if err := status.CanStart(status.OpSubmitJob, status.Of(p.Assigned, p.JobID.String, p.ErrStatus.String),
		p.JobID.String, p.ErrStatus.String); err != nil {
		return err
	}
	t, err := tx.TaskForUpdate(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	if t.JobID.Valid && t.JobID.String != "" {
		return apperr.New(apperr.Conflict, "a job with id '%s' is already pending on this task", t.JobID.String)
	}
	if t.ErrStatus.Valid && t.ErrStatus.String != "" {
		return apperr.New(apperr.PreviousJob, "previous job failed: %s", t.ErrStatus.String)
	}
	if err := checkPrecondition(service, t); err != nil {
		return err
	}
	inURL, outURL := newToken(), newToken()
	now := time.Now()
	if err := tx.InsertIncoming(ctx, &persistence.Incoming{URL: inURL, ProjectID: projectID,
		TaskID: utils.ToSQLInt32(int32(taskID)), ServiceType: service.String(), Created: now}); err != nil {
		return err
	}
	if err := tx.InsertOutgoing(ctx, &persistence.Outgoing{URL: outURL, ProjectID: projectID,
		TaskID: utils.ToSQLInt32(int32(taskID)), AudioFile: p.AudioFile.String,
		Start: utils.ToSQLFloat64(t.Start), End: utils.ToSQLFloat64(t.End),
		Created: now}); err != nil {
		return err
	}
	if err := tx.SetTaskLock(ctx, projectID, taskID, service.String()+status.PhaseTaskSuffix); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}

	jobID, sideErr := o.d.Speech.Submit(ctx, &speech.Job{
		GetAudioURL:  o.callbackURL("audio", outURL),
		PutResultURL: o.callbackURL("result", inURL),
		Service:      service.String(),
		Subsystem:    "default",
		Params:       params,
	})
	tx2, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx2)
	if sideErr != nil {
		goapp.Log.Error().Err(sideErr).Str("ID", projectID).Int("taskID", taskID).Msg("job submission failed")
		if _, err := tx2.TakeIncoming(ctx, inURL); err != nil {
			return err
		}
		if _, err := tx2.TakeOutgoing(ctx, outURL); err != nil {
			return err
		}
		if err := tx2.ClearTaskLock(ctx, projectID, taskID, sideErr.Error()); err != nil {
			return err
		}
		if err := tx2.Commit(ctx); err != nil {
			return fmt.Errorf("can't commit: %w", err)
		}
		return apperr.Wrap(apperr.Internal, sideErr, "can't submit job")
	}
	if err := tx2.SetTaskLock(ctx, projectID, taskID, jobID); err != nil {
		return err
	}
	if err := tx2.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Str("jobID", jobID).Msg("job submitted")
	return nil
}

func checkPrecondition(service ServiceType, t *persistence.Task) error {
	if !t.TextFile.Valid {
		return apperr.New(apperr.Conflict, "task %d has no text file yet", t.TaskID)
	}
	b, err := os.ReadFile(t.TextFile.String)
	if err != nil {
		return fmt.Errorf("can't read text: %w", err)
	}
	empty := strings.TrimSpace(string(b)) == ""
	switch service {
	case Diarize:
		if !empty {
			return apperr.New(apperr.Conflict, "task %d text is not empty", t.TaskID)
		}
	case Align:
		if empty {
			return apperr.New(apperr.Conflict, "task %d text is empty", t.TaskID)
		}
	}
	return nil
}

// ServeAudio consumes the one-shot outgoing routing token and returns the audio
// stream with the requested time range. A second access fails MethodNotAllowed.
func (o *Orchestrator) ServeAudio(ctx context.Context, token string) (io.ReadSeekCloser, *persistence.Outgoing, error) {
	tx, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer rollback(ctx, tx)
	out, err := tx.TakeOutgoing(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if out == nil {
		return nil, nil, apperr.New(apperr.MethodNotAllowed, "unknown or already consumed audio URL")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("can't commit: %w", err)
	}
	r, err := o.d.Filer.LoadFile(ctx, out.AudioFile)
	if err != nil {
		return nil, nil, err
	}
	goapp.Log.Info().Str("ID", out.ProjectID).Msg("serving audio to speech service")
	return r, out, nil
}

// OnResult consumes the one-shot incoming routing token and reconciles the job
// outcome. The token is consumed even when result processing fails, and a
// failed task never stays locked.
func (o *Orchestrator) OnResult(ctx context.Context, token string, res *Result) error {
	tx, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	inc, err := tx.TakeIncoming(ctx, token)
	if err != nil {
		return err
	}
	if inc == nil {
		return apperr.New(apperr.MethodNotAllowed, "unknown or already consumed result URL")
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	if inc.TaskID.Valid {
		return o.onTaskResult(ctx, inc, res)
	}
	return o.onProjectResult(ctx, inc, res)
}

func (o *Orchestrator) onTaskResult(ctx context.Context, inc *persistence.Incoming, res *Result) error {
	projectID, taskID := inc.ProjectID, int(inc.TaskID.Int32)
	if res.ErrStatus != "" {
		goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Str("errStatus", res.ErrStatus).Msg("job failed")
		if err := o.clearTask(ctx, projectID, taskID, res.ErrStatus); err != nil {
			return err
		}
		o.sendTaskEvent(ctx, projectID, taskID, messages.EventJobFailed)
		return nil
	}
	if err := o.applyTaskResult(ctx, inc, res); err != nil {
		goapp.Log.Error().Err(err).Str("ID", projectID).Int("taskID", taskID).Msg("can't process job result")
		if errC := o.clearTask(ctx, projectID, taskID, err.Error()); errC != nil {
			return errC
		}
		return apperr.Wrap(apperr.Internal, err, "can't process job result")
	}
	o.sendTaskEvent(ctx, projectID, taskID, messages.EventJobFinished)
	goapp.Log.Info().Str("ID", projectID).Int("taskID", taskID).Msg("job result processed")
	return nil
}

func (o *Orchestrator) applyTaskResult(ctx context.Context, inc *persistence.Incoming, res *Result) error {
	st, err := ParseServiceType(inc.ServiceType)
	if err != nil {
		return err
	}
	text, err := formatText(st, res.CTM)
	if err != nil {
		return err
	}
	projectID, taskID := inc.ProjectID, int(inc.TaskID.Int32)
	tx, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	t, err := tx.TaskForUpdate(ctx, projectID, taskID)
	if err != nil {
		return err
	}
	dir := o.d.Paths.TaskDir(projectID, taskID)
	if err := o.d.Repo.Check(dir, t.CommitID.String); err != nil {
		return err
	}
	fn := dir + string(os.PathSeparator) + storage.TextFileName
	if err := os.WriteFile(fn, []byte(text), 0600); err != nil {
		return fmt.Errorf("can't write text: %w", err)
	}
	commitID, at, err := o.d.Repo.Commit(dir, storage.TextFileName, inc.ServiceType+" result")
	if err != nil {
		return err
	}
	if err := tx.UpdateTaskCommit(ctx, projectID, taskID, commitID, at); err != nil {
		return err
	}
	if err := tx.ClearTaskLock(ctx, projectID, taskID, ""); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

// onProjectResult handles the whole project diarization callback: the returned
// segmentation fully replaces the task set
func (o *Orchestrator) onProjectResult(ctx context.Context, inc *persistence.Incoming, res *Result) error {
	projectID := inc.ProjectID
	tx, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := tx.ProjectForUpdate(ctx, projectID)
	if err != nil {
		return err
	}
	if res.ErrStatus != "" {
		goapp.Log.Info().Str("ID", projectID).Str("errStatus", res.ErrStatus).Msg("diarization failed")
		if err := tx.ClearProjectLock(ctx, projectID, res.ErrStatus); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("can't commit: %w", err)
		}
		o.sendProjectEvent(ctx, projectID, messages.EventJobFailed, p.Owner)
		return nil
	}
	segments, parseErr := parseSegments(res.CTM)
	if parseErr != nil {
		goapp.Log.Error().Err(parseErr).Str("ID", projectID).Msg("can't parse diarization result")
		if err := tx.ClearProjectLock(ctx, projectID, parseErr.Error()); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("can't commit: %w", err)
		}
		return apperr.Wrap(apperr.Internal, parseErr, "can't parse diarization result")
	}
	tasks := make([]persistence.Task, 0, len(segments))
	for i, s := range segments {
		tasks = append(tasks, persistence.Task{ProjectID: projectID, TaskID: i,
			Start: s.start, End: s.end, CreationYear: p.CreationYear})
	}
	if err := tx.ReplaceTasks(ctx, projectID, tasks); err != nil {
		return err
	}
	if err := tx.ClearProjectLock(ctx, projectID, ""); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	o.sendProjectEvent(ctx, projectID, messages.EventDiarized, p.Owner)
	goapp.Log.Info().Str("ID", projectID).Int("tasks", len(tasks)).Msg("diarization result processed")
	return nil
}

func (o *Orchestrator) clearTask(ctx context.Context, projectID string, taskID int, errStatus string) error {
	tx, err := o.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	if err := tx.ClearTaskLock(ctx, projectID, taskID, errStatus); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

func (o *Orchestrator) sendTaskEvent(ctx context.Context, projectID string, taskID int, event string) {
	msg := &messages.TaskMessage{ProjectMessage: *messages.NewProjectMessage(projectID, event, ""), TaskID: taskID}
	if err := o.d.MsgSender.SendMessage(ctx, msg, messages.StatusChange); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", projectID).Msg("can't send status msg")
	}
}

func (o *Orchestrator) sendProjectEvent(ctx context.Context, projectID, event, owner string) {
	if err := o.d.MsgSender.SendMessage(ctx, messages.NewProjectMessage(projectID, event, owner), messages.StatusChange); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", projectID).Msg("can't send status msg")
	}
}

func (o *Orchestrator) callbackURL(kind, token string) string {
	return strings.TrimSuffix(o.d.ExternalURL, "/") + "/io/" + kind + "/" + token
}

func newToken() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

func rollback(ctx context.Context, tx postgres.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		goapp.Log.Warn().Err(err).Msg("can't rollback")
	}
}
