package project

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
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

// Epsilon is the tolerance for segment contiguity checks, in seconds
const Epsilon = 0.01

// DB provides persistence functionality
type DB interface {
	BeginExclusive(ctx context.Context) (postgres.Tx, error)
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
	ListProjects(ctx context.Context, owner string) ([]persistence.Project, error)
	LoadTasks(ctx context.Context, projectID string) ([]persistence.Task, error)
}

// Filer stores audio files
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, size int64) error
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
	DeleteFile(ctx context.Context, name string) error
}

// Prober returns audio duration in seconds
type Prober interface {
	Duration(ctx context.Context, name string, r io.Reader) (float64, error)
}

// Speech submits jobs to the external speech processing service
type Speech interface {
	Submit(ctx context.Context, job *speech.Job) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// Repo provides text version control
type Repo interface {
	Init(dir string) error
	Commit(dir, file, message string) (string, time.Time, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Data keeps dependencies and config of the lifecycle manager
type Data struct {
	DB         DB
	Filer      Filer
	Prober     Prober
	Speech     Speech
	Repo       Repo
	MsgSender  MsgSender
	Paths      *storage.Paths
	Categories []string
	// ExternalURL is this server's base for the one-shot callback URLs
	ExternalURL string
}

// Manager implements the project lifecycle state machine
type Manager struct {
	d *Data
}

// NewManager creates Manager instance
func NewManager(data *Data) (*Manager, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Manager{d: data}, nil
}

func validate(data *Data) error {
	if data == nil {
		return errors.New("no data")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.Filer == nil {
		return errors.New("no filer")
	}
	if data.Prober == nil {
		return errors.New("no prober")
	}
	if data.Speech == nil {
		return errors.New("no speech client")
	}
	if data.Repo == nil {
		return errors.New("no repo")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	if data.Paths == nil {
		return errors.New("no paths")
	}
	if len(data.Categories) == 0 {
		return errors.New("no categories")
	}
	if data.ExternalURL == "" {
		return errors.New("no external URL")
	}
	return nil
}

// Categories lists the admin configured project categories
func (m *Manager) Categories() []string {
	return m.d.Categories
}

// Create makes a new project for the user, returns the new project id
func (m *Manager) Create(ctx context.Context, owner, name, category string) (string, error) {
	if name == "" {
		return "", apperr.New(apperr.BadRequest, "no project name")
	}
	if !m.validCategory(category) {
		return "", apperr.New(apperr.BadRequest, "project category '%s' not found", category)
	}
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return "", err
	}
	defer rollback(ctx, tx)

	id := newProjectID()
	for {
		exists, err := tx.ProjectExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		id = newProjectID()
	}
	now := time.Now()
	p := &persistence.Project{ID: id, Name: name, Category: category, Owner: owner,
		CreationYear: now.Year(), Created: now}
	if err := tx.InsertProject(ctx, p); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("can't commit: %w", err)
	}
	m.sendEvent(ctx, id, messages.EventCreated, owner)
	goapp.Log.Info().Str("ID", id).Str("owner", owner).Msg("created project")
	return id, nil
}

// List returns projects owned by the user
func (m *Manager) List(ctx context.Context, owner string) ([]persistence.Project, error) {
	return m.d.DB.ListProjects(ctx, owner)
}

// Load returns the project and its tasks
func (m *Manager) Load(ctx context.Context, id string) (*persistence.Project, []persistence.Task, error) {
	p, err := m.d.DB.LoadProject(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := m.d.DB.LoadTasks(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, tasks, nil
}

// Audio returns the project audio stream
func (m *Manager) Audio(ctx context.Context, id string) (io.ReadSeekCloser, error) {
	p, err := m.d.DB.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.AudioFile.Valid {
		return nil, apperr.New(apperr.NotFound, "no audio uploaded for project '%s'", id)
	}
	return m.d.Filer.LoadFile(ctx, p.AudioFile.String)
}

// Upload stores new project audio, probes its duration and invalidates the old
// segmentation. The previous audio file is removed only after the new state is
// durably committed.
func (m *Manager) Upload(ctx context.Context, id, fileName string, r io.Reader) error {
	p, err := m.lockProject(ctx, id, status.OpUpload, status.PhaseUpload)
	if err != nil {
		return err
	}

	// side effects outside any transaction
	name, dur, sideErr := m.saveNewAudio(ctx, p, fileName, r)
	if sideErr != nil {
		goapp.Log.Error().Err(sideErr).Str("ID", id).Msg("audio upload failed")
		if err := m.finishWithError(ctx, id, sideErr.Error()); err != nil {
			return err
		}
		return apperr.Wrap(apperr.Internal, sideErr, "can't upload audio")
	}

	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	if err := tx.UpdateProjectAudio(ctx, id, name, dur); err != nil {
		return err
	}
	// old segmentation is invalidated by new audio
	if err := tx.ReplaceTasks(ctx, id, nil); err != nil {
		return err
	}
	if err := tx.ClearProjectLock(ctx, id, ""); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	if p.AudioFile.Valid {
		if err := m.d.Filer.DeleteFile(ctx, p.AudioFile.String); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't remove old audio")
		}
	}
	goapp.Log.Info().Str("ID", id).Float64("duration", dur).Msg("audio uploaded")
	return nil
}

func (m *Manager) saveNewAudio(ctx context.Context, p *persistence.Project, fileName string, r io.Reader) (string, float64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("can't read audio: %w", err)
	}
	if len(b) == 0 {
		return "", 0, fmt.Errorf("empty audio")
	}
	name := storage.AudioName(p.Owner, time.Now(), p.ID, newToken())
	if err := m.d.Filer.SaveFile(ctx, name, bytes.NewReader(b), int64(len(b))); err != nil {
		return "", 0, err
	}
	dur, err := m.d.Prober.Duration(ctx, fileName, bytes.NewReader(b))
	if err != nil {
		if errD := m.d.Filer.DeleteFile(ctx, name); errD != nil {
			goapp.Log.Warn().Err(errD).Msg("can't remove failed upload")
		}
		return "", 0, err
	}
	return name, dur, nil
}

// TaskIn is one segment of a segmentation save request
type TaskIn struct {
	Editor   string  `json:"editor"`
	Collator string  `json:"collator"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Language string  `json:"language"`
}

// Save replaces the project's task segmentation before assignment.
// Segments must be contiguous, non-overlapping and span the audio exactly.
func (m *Manager) Save(ctx context.Context, id string, tasks []TaskIn) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := m.checkProject(ctx, tx, id, status.OpSave)
	if err != nil {
		return err
	}
	if !p.AudioFile.Valid {
		return apperr.New(apperr.Conflict, "no audio uploaded for project '%s'", id)
	}
	newTasks, err := buildTasks(p, tasks)
	if err != nil {
		return err
	}
	if err := tx.ReplaceTasks(ctx, id, newTasks); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", id).Int("tasks", len(newTasks)).Msg("saved project")
	return nil
}

func buildTasks(p *persistence.Project, tasks []TaskIn) ([]persistence.Task, error) {
	if len(tasks) == 0 {
		return nil, apperr.New(apperr.BadRequest, "no tasks provided")
	}
	sorted := make([]TaskIn, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	res := make([]persistence.Task, 0, len(sorted))
	expected := 0.0
	for i, t := range sorted {
		if t.Editor == "" || t.Collator == "" || t.Language == "" {
			return nil, apperr.New(apperr.BadRequest, "task %d: editor, collator and language are required", i)
		}
		if t.End <= t.Start {
			return nil, apperr.New(apperr.BadRequest, "task %d: end must be after start", i)
		}
		if math.Abs(t.Start-expected) > Epsilon {
			return nil, apperr.New(apperr.BadRequest,
				"task %d: segment starts at %.3f, expected %.3f", i, t.Start, expected)
		}
		expected = t.End
		res = append(res, persistence.Task{ProjectID: p.ID, TaskID: i,
			Editor: utils.ToSQLStr(t.Editor), Collator: utils.ToSQLStr(t.Collator),
			Start: t.Start, End: t.End, Language: utils.ToSQLStr(t.Language),
			CreationYear: p.CreationYear})
	}
	dur := p.AudioDuration.Float64
	if math.Abs(expected-dur) > Epsilon {
		return nil, apperr.New(apperr.BadRequest,
			"segments end at %.3f, expected audio duration %.3f", expected, dur)
	}
	return res, nil
}

// Assign materializes every task: creates the per-task text repository, commits
// an empty text file and freezes the segmentation. All-or-nothing - a failure
// mid-loop removes every directory created so far.
func (m *Manager) Assign(ctx context.Context, id string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	_, err = m.checkProject(ctx, tx, id, status.OpAssign)
	if err != nil {
		return err
	}
	tasks, err := tx.Tasks(ctx, id)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return apperr.New(apperr.BadRequest, "no tasks configured")
	}
	for i := range tasks {
		t := &tasks[i]
		if !t.Editor.Valid || !t.Collator.Valid || !t.Language.Valid {
			return apperr.New(apperr.BadRequest, "task %d is not fully specified", t.TaskID)
		}
	}
	if err := tx.SetProjectLock(ctx, id, status.PhaseAssign); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}

	// filesystem work outside the transaction
	created := []string{}
	var sideErr error
	for i := range tasks {
		t := &tasks[i]
		dir := m.d.Paths.TaskDir(id, t.TaskID)
		if sideErr = m.materializeTask(t, dir); sideErr != nil {
			break
		}
		created = append(created, dir)
	}
	if sideErr != nil {
		removeDirs(created)
		goapp.Log.Error().Err(sideErr).Str("ID", id).Msg("assign failed")
		if err := m.finishWithError(ctx, id, sideErr.Error()); err != nil {
			return err
		}
		return apperr.Wrap(apperr.Internal, sideErr, "can't assign tasks")
	}

	tx2, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		removeDirs(created)
		return err
	}
	defer rollback(ctx, tx2)
	persistErr := func() error {
		for i := range tasks {
			if err := tx2.UpdateTaskText(ctx, &tasks[i]); err != nil {
				return err
			}
		}
		if err := tx2.SetProjectAssigned(ctx, id); err != nil {
			return err
		}
		if err := tx2.ClearProjectLock(ctx, id, ""); err != nil {
			return err
		}
		return tx2.Commit(ctx)
	}()
	if persistErr != nil {
		removeDirs(created)
		if err := m.finishWithError(ctx, id, persistErr.Error()); err != nil {
			return err
		}
		return persistErr
	}
	m.sendEvent(ctx, id, messages.EventAssigned, "")
	goapp.Log.Info().Str("ID", id).Int("tasks", len(tasks)).Msg("assigned tasks")
	return nil
}

func (m *Manager) materializeTask(t *persistence.Task, dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("can't create task dir: %w", err)
	}
	if err := m.d.Repo.Init(dir); err != nil {
		return err
	}
	fn := dir + string(os.PathSeparator) + storage.TextFileName
	if err := os.WriteFile(fn, nil, 0600); err != nil {
		return fmt.Errorf("can't create text file: %w", err)
	}
	commitID, at, err := m.d.Repo.Commit(dir, storage.TextFileName, "task assigned")
	if err != nil {
		return err
	}
	t.TextFile = utils.ToSQLStr(fn)
	t.Created = toSQLTime(at)
	t.Modified = toSQLTime(at)
	t.CommitID = utils.ToSQLStr(commitID)
	t.Ownership = persistence.OwnershipEditor
	return nil
}

// UpdateTaskIn carries post-assignment changes of one task
type UpdateTaskIn struct {
	TaskID    int     `json:"taskID"`
	Editor    *string `json:"editor,omitempty"`
	Collator  *string `json:"collator,omitempty"`
	Language  *string `json:"language,omitempty"`
	Ownership *int    `json:"ownership,omitempty"`
}

// UpdateIn carries a post-assignment project update
type UpdateIn struct {
	Name     *string        `json:"name,omitempty"`
	Category *string        `json:"category,omitempty"`
	Tasks    []UpdateTaskIn `json:"tasks,omitempty"`
}

// Update changes assignees, languages, ownership and whitelisted project
// metadata after assignment. Segmentation is immutable here.
func (m *Manager) Update(ctx context.Context, id string, in *UpdateIn) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := m.checkProject(ctx, tx, id, status.OpUpdate)
	if err != nil {
		return err
	}
	tasks, err := tx.Tasks(ctx, id)
	if err != nil {
		return err
	}
	byID := map[int]*persistence.Task{}
	for i := range tasks {
		byID[tasks[i].TaskID] = &tasks[i]
	}
	for _, ut := range in.Tasks {
		t, ok := byID[ut.TaskID]
		if !ok {
			return apperr.New(apperr.BadRequest, "unknown task id %d", ut.TaskID)
		}
		if ut.Editor != nil {
			t.Editor = utils.ToSQLStr(*ut.Editor)
		}
		if ut.Collator != nil {
			t.Collator = utils.ToSQLStr(*ut.Collator)
		}
		if ut.Language != nil {
			t.Language = utils.ToSQLStr(*ut.Language)
		}
		if ut.Ownership != nil {
			if *ut.Ownership != persistence.OwnershipEditor && *ut.Ownership != persistence.OwnershipCollator {
				return apperr.New(apperr.BadRequest, "wrong ownership %d", *ut.Ownership)
			}
			t.Ownership = *ut.Ownership
		}
		if err := tx.UpdateTaskAssignment(ctx, t); err != nil {
			return err
		}
	}
	name, category := p.Name, p.Category
	if in.Name != nil && *in.Name != "" {
		name = *in.Name
	}
	if in.Category != nil {
		if !m.validCategory(*in.Category) {
			return apperr.New(apperr.BadRequest, "project category '%s' not found", *in.Category)
		}
		category = *in.Category
	}
	if err := tx.UpdateProjectMeta(ctx, id, name, category); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", id).Msg("updated project")
	return nil
}

// Diarize submits whole-project diarization to the external service. The
// callback replaces the entire task set with the returned segmentation.
func (m *Manager) Diarize(ctx context.Context, id string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := m.checkProject(ctx, tx, id, status.OpDiarize)
	if err != nil {
		return err
	}
	if !p.AudioFile.Valid {
		return apperr.New(apperr.Conflict, "no audio uploaded for project '%s'", id)
	}
	inURL, outURL := newToken(), newToken()
	now := time.Now()
	if err := tx.InsertIncoming(ctx, &persistence.Incoming{URL: inURL, ProjectID: id,
		ServiceType: "diarize", Created: now}); err != nil {
		return err
	}
	if err := tx.InsertOutgoing(ctx, &persistence.Outgoing{URL: outURL, ProjectID: id,
		AudioFile: p.AudioFile.String, Created: now}); err != nil {
		return err
	}
	if err := tx.SetProjectLock(ctx, id, status.PhaseDiarize); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}

	jobID, sideErr := m.d.Speech.Submit(ctx, &speech.Job{
		GetAudioURL:  m.callbackURL("audio", outURL),
		PutResultURL: m.callbackURL("result", inURL),
		Service:      "diarize",
		Subsystem:    "default",
	})
	tx2, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx2)
	if sideErr != nil {
		goapp.Log.Error().Err(sideErr).Str("ID", id).Msg("diarize submission failed")
		if err := tx2.DeleteRouting(ctx, id); err != nil {
			return err
		}
		if err := tx2.ClearProjectLock(ctx, id, sideErr.Error()); err != nil {
			return err
		}
		if err := tx2.Commit(ctx); err != nil {
			return fmt.Errorf("can't commit: %w", err)
		}
		return apperr.Wrap(apperr.Internal, sideErr, "can't submit diarization")
	}
	if err := tx2.SetProjectLock(ctx, id, jobID); err != nil {
		return err
	}
	if err := tx2.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	goapp.Log.Info().Str("ID", id).Str("jobID", jobID).Msg("diarize submitted")
	return nil
}

// Delete removes the project, its tasks and best-effort its files.
// A dangling directory is an acceptable residual, a dangling DB row is not.
func (m *Manager) Delete(ctx context.Context, id string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := m.checkProject(ctx, tx, id, status.OpDelete)
	if err != nil {
		return err
	}
	if err := tx.DeleteProject(ctx, id); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	if err := os.RemoveAll(m.d.Paths.ProjectDir(id)); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't remove project text dir")
	}
	if p.AudioFile.Valid {
		if err := m.d.Filer.DeleteFile(ctx, p.AudioFile.String); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't remove project audio")
		}
	}
	goapp.Log.Info().Str("ID", id).Msg("deleted project")
	return nil
}

// Unlock is the recovery operation: it interprets the phase tag left in job_id,
// performs the phase-appropriate compensating cleanup and always ends with the
// lock cleared and a descriptive error status. Idempotent.
func (m *Manager) Unlock(ctx context.Context, id string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	p, err := m.checkProject(ctx, tx, id, status.OpUnlock)
	if err != nil {
		return err
	}
	st := stateOf(p)
	if st == status.Errored {
		if err := tx.ClearProjectLock(ctx, id, ""); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("can't commit: %w", err)
		}
		m.sendEvent(ctx, id, messages.EventUnlocked, p.Owner)
		goapp.Log.Info().Str("ID", id).Msg("cleared error status")
		return nil
	}
	phase := p.JobID.String
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}

	errStatus := "interrupted: " + phase
	switch phase {
	case status.PhaseAssign:
		removeDirs([]string{m.d.Paths.ProjectDir(id)})
	case status.PhaseUpload, status.PhaseDiarize:
		// nothing on disk to clean, stale routing rows are dropped below
	default:
		// unrecognized tag means a pending external job
		if err := m.d.Speech.Cancel(ctx, phase); err != nil {
			goapp.Log.Warn().Err(err).Str("jobID", phase).Msg("can't cancel external job")
		}
		errStatus = "cancelled pending job: " + phase
	}

	tx2, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx2)
	if err := tx2.DeleteRouting(ctx, id); err != nil {
		return err
	}
	if err := tx2.ClearProjectLock(ctx, id, errStatus); err != nil {
		return err
	}
	if err := tx2.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	m.sendEvent(ctx, id, messages.EventUnlocked, p.Owner)
	goapp.Log.Info().Str("ID", id).Str("phase", phase).Msg("unlocked project")
	return nil
}

// lockProject begins, checks and locks in one transaction, returns the project as loaded
func (m *Manager) lockProject(ctx context.Context, id string, op status.Operation, phase string) (*persistence.Project, error) {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback(ctx, tx)
	p, err := m.checkProject(ctx, tx, id, op)
	if err != nil {
		return nil, err
	}
	if err := tx.SetProjectLock(ctx, id, phase); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("can't commit: %w", err)
	}
	return p, nil
}

// checkProject loads the row under write intent and consults the transition authority
func (m *Manager) checkProject(ctx context.Context, tx postgres.Tx, id string, op status.Operation) (*persistence.Project, error) {
	p, err := tx.ProjectForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := status.CanStart(op, stateOf(p), p.JobID.String, p.ErrStatus.String); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Manager) finishWithError(ctx context.Context, id, errStatus string) error {
	tx, err := m.d.DB.BeginExclusive(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)
	if err := tx.DeleteRouting(ctx, id); err != nil {
		return err
	}
	if err := tx.ClearProjectLock(ctx, id, errStatus); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

func (m *Manager) sendEvent(ctx context.Context, id, event, owner string) {
	err := m.d.MsgSender.SendMessage(ctx, messages.NewProjectMessage(id, event, owner), messages.StatusChange)
	if err != nil {
		goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't send status msg")
		return
	}
	if event == messages.EventAssigned || event == messages.EventUnlocked {
		if err := m.d.MsgSender.SendMessage(ctx, messages.NewProjectMessage(id, event, owner), messages.Inform); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't send inform msg")
		}
	}
}

func (m *Manager) validCategory(category string) bool {
	for _, c := range m.d.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func (m *Manager) callbackURL(kind, token string) string {
	return strings.TrimSuffix(m.d.ExternalURL, "/") + "/io/" + kind + "/" + token
}

func stateOf(p *persistence.Project) status.State {
	return status.Of(p.Assigned, p.JobID.String, p.ErrStatus.String)
}

func newProjectID() string {
	return "p" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func newToken() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

func toSQLTime(t time.Time) (res sql.NullTime) {
	res.Time, res.Valid = t, true
	return res
}

func rollback(ctx context.Context, tx postgres.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		goapp.Log.Warn().Err(err).Msg("can't rollback")
	}
}

func removeDirs(dirs []string) {
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil {
			goapp.Log.Warn().Err(err).Str("dir", d).Msg("can't remove dir")
		}
	}
}
