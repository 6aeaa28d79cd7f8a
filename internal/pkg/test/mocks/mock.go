package mocks

import (
	"context"
	"io"
	"time"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/mock"

	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/postgres"
	"github.com/airenas/scribe/internal/pkg/speech"
)

// DB is postgres store mock
type DB struct{ mock.Mock }

func (m *DB) BeginExclusive(ctx context.Context) (postgres.Tx, error) {
	args := m.Called(ctx)
	return to[postgres.Tx](args.Get(0)), args.Error(1)
}

func (m *DB) LoadProject(ctx context.Context, id string) (*persistence.Project, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Project](args.Get(0)), args.Error(1)
}

func (m *DB) ListProjects(ctx context.Context, owner string) ([]persistence.Project, error) {
	args := m.Called(ctx, owner)
	return to[[]persistence.Project](args.Get(0)), args.Error(1)
}

func (m *DB) LoadTasks(ctx context.Context, projectID string) ([]persistence.Task, error) {
	args := m.Called(ctx, projectID)
	return to[[]persistence.Task](args.Get(0)), args.Error(1)
}

func (m *DB) LoadTask(ctx context.Context, projectID string, taskID int) (*persistence.Task, error) {
	args := m.Called(ctx, projectID, taskID)
	return to[*persistence.Task](args.Get(0)), args.Error(1)
}

func (m *DB) ListEditorTasks(ctx context.Context, user string) ([]persistence.Task, error) {
	args := m.Called(ctx, user)
	return to[[]persistence.Task](args.Get(0)), args.Error(1)
}

// Tx is one exclusive transaction mock
type Tx struct{ mock.Mock }

func (m *Tx) ProjectExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *Tx) ProjectForUpdate(ctx context.Context, id string) (*persistence.Project, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Project](args.Get(0)), args.Error(1)
}

func (m *Tx) TaskForUpdate(ctx context.Context, projectID string, taskID int) (*persistence.Task, error) {
	args := m.Called(ctx, projectID, taskID)
	return to[*persistence.Task](args.Get(0)), args.Error(1)
}

func (m *Tx) Tasks(ctx context.Context, projectID string) ([]persistence.Task, error) {
	args := m.Called(ctx, projectID)
	return to[[]persistence.Task](args.Get(0)), args.Error(1)
}

func (m *Tx) InsertProject(ctx context.Context, p *persistence.Project) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *Tx) UpdateProjectAudio(ctx context.Context, id, audioFile string, duration float64) error {
	args := m.Called(ctx, id, audioFile, duration)
	return args.Error(0)
}

func (m *Tx) UpdateProjectMeta(ctx context.Context, id, name, category string) error {
	args := m.Called(ctx, id, name, category)
	return args.Error(0)
}

func (m *Tx) SetProjectAssigned(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Tx) SetProjectLock(ctx context.Context, id, jobID string) error {
	args := m.Called(ctx, id, jobID)
	return args.Error(0)
}

func (m *Tx) ClearProjectLock(ctx context.Context, id, errStatus string) error {
	args := m.Called(ctx, id, errStatus)
	return args.Error(0)
}

func (m *Tx) SetTaskLock(ctx context.Context, projectID string, taskID int, jobID string) error {
	args := m.Called(ctx, projectID, taskID, jobID)
	return args.Error(0)
}

func (m *Tx) ClearTaskLock(ctx context.Context, projectID string, taskID int, errStatus string) error {
	args := m.Called(ctx, projectID, taskID, errStatus)
	return args.Error(0)
}

func (m *Tx) ReplaceTasks(ctx context.Context, projectID string, tasks []persistence.Task) error {
	args := m.Called(ctx, projectID, tasks)
	return args.Error(0)
}

func (m *Tx) UpdateTaskAssignment(ctx context.Context, t *persistence.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *Tx) UpdateTaskText(ctx context.Context, t *persistence.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *Tx) UpdateTaskCommit(ctx context.Context, projectID string, taskID int, commitID string, modified time.Time) error {
	args := m.Called(ctx, projectID, taskID, commitID, modified)
	return args.Error(0)
}

func (m *Tx) SetTaskOwnership(ctx context.Context, projectID string, taskID, ownership int) error {
	args := m.Called(ctx, projectID, taskID, ownership)
	return args.Error(0)
}

func (m *Tx) InsertIncoming(ctx context.Context, r *persistence.Incoming) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *Tx) InsertOutgoing(ctx context.Context, r *persistence.Outgoing) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *Tx) TakeIncoming(ctx context.Context, url string) (*persistence.Incoming, error) {
	args := m.Called(ctx, url)
	return to[*persistence.Incoming](args.Get(0)), args.Error(1)
}

func (m *Tx) TakeOutgoing(ctx context.Context, url string) (*persistence.Outgoing, error) {
	args := m.Called(ctx, url)
	return to[*persistence.Outgoing](args.Get(0)), args.Error(1)
}

func (m *Tx) DeleteRouting(ctx context.Context, projectID string) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

func (m *Tx) DeleteTaskRouting(ctx context.Context, projectID string, taskID int) error {
	args := m.Called(ctx, projectID, taskID)
	return args.Error(0)
}

func (m *Tx) DeleteProject(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Tx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Tx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Filer is file storage mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	args := m.Called(ctx, name, r, size)
	return args.Error(0)
}

func (m *Filer) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, name)
	return to[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

func (m *Filer) DeleteFile(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// Prober is audio duration mock
type Prober struct{ mock.Mock }

func (m *Prober) Duration(ctx context.Context, name string, r io.Reader) (float64, error) {
	args := m.Called(ctx, name, r)
	return args.Get(0).(float64), args.Error(1)
}

// Speech is external speech service client mock
type Speech struct{ mock.Mock }

func (m *Speech) Submit(ctx context.Context, job *speech.Job) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *Speech) Cancel(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// Repo is text version control mock
type Repo struct{ mock.Mock }

func (m *Repo) Init(dir string) error {
	args := m.Called(dir)
	return args.Error(0)
}

func (m *Repo) Check(dir, commitID string) error {
	args := m.Called(dir, commitID)
	return args.Error(0)
}

func (m *Repo) Commit(dir, file, message string) (string, time.Time, error) {
	args := m.Called(dir, file, message)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *Repo) Revert(dir, file, commitID string) (string, time.Time, error) {
	args := m.Called(dir, file, commitID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// Sender is msg sender mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
