package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/storage"
	"github.com/airenas/scribe/internal/pkg/test/mocks"
	"github.com/airenas/scribe/internal/pkg/utils"
)

var (
	dbMock     *mocks.DB
	txMock     *mocks.Tx
	filerMock  *mocks.Filer
	repoMock   *mocks.Repo
	senderMock *mocks.Sender
	speechMock *mocks.Speech
)

var errTest = errors.New("olia error")

func initTest(t *testing.T) *Manager {
	t.Helper()
	dbMock = &mocks.DB{}
	txMock = &mocks.Tx{}
	filerMock = &mocks.Filer{}
	repoMock = &mocks.Repo{}
	senderMock = &mocks.Sender{}
	speechMock = &mocks.Speech{}
	dbMock.On("BeginExclusive", mock.Anything).Return(txMock, nil)
	txMock.On("Rollback", mock.Anything).Return(nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	paths, err := storage.NewPaths(t.TempDir())
	require.Nil(t, err)
	res, err := NewManager(&Data{DB: dbMock, Filer: filerMock, Repo: repoMock,
		MsgSender: senderMock, Speech: speechMock, Paths: paths})
	require.Nil(t, err)
	return res
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cf := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cf)
	return ctx
}

func editorTask(projectID string, taskID int) *persistence.Task {
	return &persistence.Task{ProjectID: projectID, TaskID: taskID,
		Editor: utils.ToSQLStr("olia"), Collator: utils.ToSQLStr("rita"),
		Language: utils.ToSQLStr("lt"), Start: 0, End: 10,
		CommitID: utils.ToSQLStr("c1"), Ownership: persistence.OwnershipEditor}
}

func TestNewManager_Fails(t *testing.T) {
	initTest(t)
	_, err := NewManager(nil)
	require.NotNil(t, err)
	_, err = NewManager(&Data{})
	require.NotNil(t, err)
}

func TestList_Groups(t *testing.T) {
	m := initTest(t)
	pending, errored, open := *editorTask("p1", 0), *editorTask("p1", 1), *editorTask("p2", 0)
	pending.JobID = utils.ToSQLStr("job1")
	errored.ErrStatus = utils.ToSQLStr("boom")
	dbMock.On("ListEditorTasks", mock.Anything, "olia").Return(
		[]persistence.Task{pending, errored, open}, nil)

	res, err := m.List(testCtx(t), "olia")
	require.Nil(t, err)
	require.Len(t, res.Pending, 1)
	require.Len(t, res.Errored, 1)
	require.Len(t, res.Open, 1)
	require.Equal(t, "p2", res.Open[0].ProjectID)
}

func TestAudio(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.Start, task.End = 3, 7.5
	dbMock.On("LoadTask", mock.Anything, "p1", 0).Return(task, nil)
	p := &persistence.Project{ID: "p1", AudioFile: utils.ToSQLStr("olia/a1")}
	dbMock.On("LoadProject", mock.Anything, "p1").Return(p, nil)
	f, err := os.Open(os.DevNull)
	require.Nil(t, err)
	t.Cleanup(func() { f.Close() })
	filerMock.On("LoadFile", mock.Anything, "olia/a1").Return(f, nil)

	r, from, to, err := m.Audio(testCtx(t), "p1", 0)
	require.Nil(t, err)
	require.NotNil(t, r)
	require.Equal(t, 3.0, from)
	require.Equal(t, 7.5, to)
}

func TestAudio_FailNoAudio(t *testing.T) {
	m := initTest(t)
	dbMock.On("LoadTask", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)
	dbMock.On("LoadProject", mock.Anything, "p1").Return(&persistence.Project{ID: "p1"}, nil)

	_, _, _, err := m.Audio(testCtx(t), "p1", 0)
	require.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestText(t *testing.T) {
	m := initTest(t)
	fn := filepath.Join(t.TempDir(), "text")
	require.Nil(t, os.WriteFile(fn, []byte("labas"), 0600))
	task := editorTask("p1", 0)
	task.TextFile = utils.ToSQLStr(fn)
	dbMock.On("LoadTask", mock.Anything, "p1", 0).Return(task, nil)

	res, err := m.Text(testCtx(t), "p1", 0)
	require.Nil(t, err)
	require.Equal(t, "labas", res)
}

func TestText_FailNotMaterialized(t *testing.T) {
	m := initTest(t)
	dbMock.On("LoadTask", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)

	_, err := m.Text(testCtx(t), "p1", 0)
	require.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestSaveText(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)
	repoMock.On("Check", mock.Anything, "c1").Return(nil)
	at := time.Now()
	repoMock.On("Commit", mock.Anything, storage.TextFileName, "saved by olia").Return("c2", at, nil)
	txMock.On("UpdateTaskCommit", mock.Anything, "p1", 0, "c2", at).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	require.Nil(t, os.MkdirAll(m.d.Paths.TaskDir("p1", 0), 0750))

	err := m.SaveText(testCtx(t), "p1", 0, "olia", "labas")
	require.Nil(t, err)
	b, err := os.ReadFile(filepath.Join(m.d.Paths.TaskDir("p1", 0), storage.TextFileName))
	require.Nil(t, err)
	require.Equal(t, "labas", string(b))
	txMock.AssertCalled(t, "UpdateTaskCommit", mock.Anything, "p1", 0, "c2", at)
}

func TestSaveText_DirtyTreeSetsError(t *testing.T) {
	m := initTest(t)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)
	repoMock.On("Check", mock.Anything, "c1").Return(errTest)
	txMock.On("ClearTaskLock", mock.Anything, "p1", 0, errTest.Error()).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	err := m.SaveText(testCtx(t), "p1", 0, "olia", "labas")
	require.Equal(t, apperr.Internal, apperr.CodeOf(err))
	txMock.AssertCalled(t, "ClearTaskLock", mock.Anything, "p1", 0, errTest.Error())
	txMock.AssertNotCalled(t, "UpdateTaskCommit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveText_FailWrongUser(t *testing.T) {
	m := initTest(t)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)

	err := m.SaveText(testCtx(t), "p1", 0, "jonas", "labas")
	require.Equal(t, apperr.NotAuthorized, apperr.CodeOf(err))
}

func TestSaveText_FailCollatorOwned(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.Ownership = persistence.OwnershipCollator
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)

	err := m.SaveText(testCtx(t), "p1", 0, "olia", "labas")
	require.Equal(t, apperr.NotAuthorized, apperr.CodeOf(err))
}

func TestSaveText_CollatorWritesAfterHandover(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.Ownership = persistence.OwnershipCollator
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)
	repoMock.On("Check", mock.Anything, "c1").Return(nil)
	repoMock.On("Commit", mock.Anything, storage.TextFileName, "saved by rita").Return("c2", time.Now(), nil)
	txMock.On("UpdateTaskCommit", mock.Anything, "p1", 0, "c2", mock.Anything).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	require.Nil(t, os.MkdirAll(m.d.Paths.TaskDir("p1", 0), 0750))

	err := m.SaveText(testCtx(t), "p1", 0, "rita", "labas")
	require.Nil(t, err)
}

func TestSaveText_FailPendingJob(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.JobID = utils.ToSQLStr("job1")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)

	err := m.SaveText(testCtx(t), "p1", 0, "olia", "labas")
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestSaveText_FailErrored(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.ErrStatus = utils.ToSQLStr("boom")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)

	err := m.SaveText(testCtx(t), "p1", 0, "olia", "labas")
	require.Equal(t, apperr.PreviousJob, apperr.CodeOf(err))
}

func TestRevert(t *testing.T) {
	m := initTest(t)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)
	at := time.Now()
	repoMock.On("Revert", mock.Anything, storage.TextFileName, "c0").Return("c3", at, nil)
	txMock.On("UpdateTaskCommit", mock.Anything, "p1", 0, "c3", at).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	err := m.Revert(testCtx(t), "p1", 0, "olia", "c0")
	require.Nil(t, err)
	txMock.AssertCalled(t, "UpdateTaskCommit", mock.Anything, "p1", 0, "c3", at)
}

func TestRevert_FailNoCommit(t *testing.T) {
	m := initTest(t)
	err := m.Revert(testCtx(t), "p1", 0, "olia", "")
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestDone(t *testing.T) {
	m := initTest(t)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)
	txMock.On("SetTaskOwnership", mock.Anything, "p1", 0, persistence.OwnershipCollator).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	err := m.Done(testCtx(t), "p1", 0, "olia")
	require.Nil(t, err)
	txMock.AssertCalled(t, "SetTaskOwnership", mock.Anything, "p1", 0, persistence.OwnershipCollator)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDone_FailAlreadyDone(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.Ownership = persistence.OwnershipCollator
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)

	err := m.Done(testCtx(t), "p1", 0, "rita")
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestClearError(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.ErrStatus = utils.ToSQLStr("boom")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)
	txMock.On("ClearTaskLock", mock.Anything, "p1", 0, "").Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	err := m.ClearError(testCtx(t), "p1", 0)
	require.Nil(t, err)
	txMock.AssertCalled(t, "ClearTaskLock", mock.Anything, "p1", 0, "")
}

func TestClearError_FailNoError(t *testing.T) {
	m := initTest(t)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)

	err := m.ClearError(testCtx(t), "p1", 0)
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestClearError_FailPendingJob(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.JobID = utils.ToSQLStr("job1")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)

	err := m.ClearError(testCtx(t), "p1", 0)
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestUnlock_FreesStuckJob(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.JobID = utils.ToSQLStr("ext-job-77")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	// a lost callback leaves every editor operation refusing
	err := m.SaveText(testCtx(t), "p1", 0, "olia", "labas")
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
	err = m.ClearError(testCtx(t), "p1", 0)
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))

	speechMock.On("Cancel", mock.Anything, "ext-job-77").Return(nil)
	txMock.On("DeleteTaskRouting", mock.Anything, "p1", 0).Return(nil)
	txMock.On("ClearTaskLock", mock.Anything, "p1", 0, "cancelled pending job: ext-job-77").Return(nil)

	err = m.Unlock(testCtx(t), "p1", 0)
	require.Nil(t, err)
	speechMock.AssertCalled(t, "Cancel", mock.Anything, "ext-job-77")
	txMock.AssertCalled(t, "DeleteTaskRouting", mock.Anything, "p1", 0)
	txMock.AssertCalled(t, "ClearTaskLock", mock.Anything, "p1", 0, "cancelled pending job: ext-job-77")
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnlock_CancelFailureStillUnlocks(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.JobID = utils.ToSQLStr("ext-job-77")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	speechMock.On("Cancel", mock.Anything, "ext-job-77").Return(errTest)
	txMock.On("DeleteTaskRouting", mock.Anything, "p1", 0).Return(nil)
	txMock.On("ClearTaskLock", mock.Anything, "p1", 0, "cancelled pending job: ext-job-77").Return(nil)

	err := m.Unlock(testCtx(t), "p1", 0)
	require.Nil(t, err)
	txMock.AssertCalled(t, "ClearTaskLock", mock.Anything, "p1", 0, "cancelled pending job: ext-job-77")
}

func TestUnlock_InterruptedSubmission(t *testing.T) {
	m := initTest(t)
	task := editorTask("p1", 0)
	task.JobID = utils.ToSQLStr("align_task")
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(task, nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	txMock.On("DeleteTaskRouting", mock.Anything, "p1", 0).Return(nil)
	txMock.On("ClearTaskLock", mock.Anything, "p1", 0, "interrupted: align_task").Return(nil)

	err := m.Unlock(testCtx(t), "p1", 0)
	require.Nil(t, err)
	speechMock.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
	txMock.AssertCalled(t, "ClearTaskLock", mock.Anything, "p1", 0, "interrupted: align_task")
}

func TestUnlock_FailNotLocked(t *testing.T) {
	m := initTest(t)
	txMock.On("TaskForUpdate", mock.Anything, "p1", 0).Return(editorTask("p1", 0), nil)

	err := m.Unlock(testCtx(t), "p1", 0)
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
	txMock.AssertNotCalled(t, "ClearTaskLock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
