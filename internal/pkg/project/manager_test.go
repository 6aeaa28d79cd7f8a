package project

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/speech"
	"github.com/airenas/scribe/internal/pkg/status"
	"github.com/airenas/scribe/internal/pkg/storage"
	"github.com/airenas/scribe/internal/pkg/test/mocks"
	"github.com/airenas/scribe/internal/pkg/utils"
)

var errTest = errors.New("olia error")

var (
	dbMock     *mocks.DB
	txMock     *mocks.Tx
	filerMock  *mocks.Filer
	proberMock *mocks.Prober
	speechMock *mocks.Speech
	repoMock   *mocks.Repo
	senderMock *mocks.Sender
)

func initTest(t *testing.T) *Manager {
	t.Helper()
	dbMock = &mocks.DB{}
	txMock = &mocks.Tx{}
	filerMock = &mocks.Filer{}
	proberMock = &mocks.Prober{}
	speechMock = &mocks.Speech{}
	repoMock = &mocks.Repo{}
	senderMock = &mocks.Sender{}
	dbMock.On("BeginExclusive", mock.Anything).Return(txMock, nil)
	txMock.On("Rollback", mock.Anything).Return(nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	paths, err := storage.NewPaths(t.TempDir())
	require.Nil(t, err)
	res, err := NewManager(&Data{DB: dbMock, Filer: filerMock, Prober: proberMock,
		Speech: speechMock, Repo: repoMock, MsgSender: senderMock, Paths: paths,
		Categories: []string{"court", "interview"}, ExternalURL: "http://scribe:8181"})
	require.Nil(t, err)
	return res
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cf := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cf)
	return ctx
}

func cleanProject(id string) *persistence.Project {
	return &persistence.Project{ID: id, Name: "n", Category: "court", Owner: "olia",
		CreationYear: 2026, Created: time.Now()}
}

func withAudio(p *persistence.Project, dur float64) *persistence.Project {
	p.AudioFile = utils.ToSQLStr("olia/2026/01/01/" + p.ID + "/a1")
	p.AudioDuration = utils.ToSQLFloat64(dur)
	return p
}

func TestNewManager(t *testing.T) {
	initTest(t)
	_, err := NewManager(nil)
	require.NotNil(t, err)
	_, err = NewManager(&Data{})
	require.NotNil(t, err)
}

func TestCreate(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectExists", mock.Anything, mock.Anything).Return(false, nil)
	txMock.On("InsertProject", mock.Anything, mock.Anything).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	id, err := m.Create(testCtx(t), "olia", "protokolas", "court")
	require.Nil(t, err)
	require.True(t, strings.HasPrefix(id, "p"))
	require.Len(t, id, 33)
	txMock.AssertCalled(t, "InsertProject", mock.Anything, mock.MatchedBy(
		func(p *persistence.Project) bool { return p.Owner == "olia" && p.Category == "court" }))
}

func TestCreate_FailCategory(t *testing.T) {
	m := initTest(t)
	_, err := m.Create(testCtx(t), "olia", "protokolas", "olia")
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestCreate_FailName(t *testing.T) {
	m := initTest(t)
	_, err := m.Create(testCtx(t), "olia", "", "court")
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestCreate_RegeneratesID(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectExists", mock.Anything, mock.Anything).Return(true, nil).Once()
	txMock.On("ProjectExists", mock.Anything, mock.Anything).Return(false, nil)
	txMock.On("InsertProject", mock.Anything, mock.Anything).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	_, err := m.Create(testCtx(t), "olia", "protokolas", "court")
	require.Nil(t, err)
	txMock.AssertNumberOfCalls(t, "ProjectExists", 2)
}

func TestUpload_FailLocked(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.JobID = utils.ToSQLStr("job1")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)

	err := m.Upload(testCtx(t), "p1", "a.wav", strings.NewReader("audio"))
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
	require.Contains(t, err.Error(), "job1")
	txMock.AssertNotCalled(t, "SetProjectLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpload_FailErrored(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.ErrStatus = utils.ToSQLStr("boom")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)

	err := m.Upload(testCtx(t), "p1", "a.wav", strings.NewReader("audio"))
	require.Equal(t, apperr.PreviousJob, apperr.CodeOf(err))
}

func TestUpload(t *testing.T) {
	m := initTest(t)
	p := withAudio(cleanProject("p1"), 5)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", status.PhaseUpload).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	proberMock.On("Duration", mock.Anything, "a.wav", mock.Anything).Return(10.5, nil)
	txMock.On("UpdateProjectAudio", mock.Anything, "p1", mock.Anything, 10.5).Return(nil)
	txMock.On("ReplaceTasks", mock.Anything, "p1", mock.Anything).Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", "").Return(nil)
	filerMock.On("DeleteFile", mock.Anything, p.AudioFile.String).Return(nil)

	err := m.Upload(testCtx(t), "p1", "a.wav", strings.NewReader("audio bytes"))
	require.Nil(t, err)
	txMock.AssertCalled(t, "ReplaceTasks", mock.Anything, "p1", []persistence.Task(nil))
	filerMock.AssertCalled(t, "DeleteFile", mock.Anything, p.AudioFile.String)
}

func TestUpload_ProbeFailUnlocksWithError(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", status.PhaseUpload).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	filerMock.On("DeleteFile", mock.Anything, mock.Anything).Return(nil)
	proberMock.On("Duration", mock.Anything, mock.Anything, mock.Anything).Return(0.0, errTest)
	txMock.On("DeleteRouting", mock.Anything, "p1").Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", mock.Anything).Return(nil)

	err := m.Upload(testCtx(t), "p1", "a.wav", strings.NewReader("audio"))
	require.Equal(t, apperr.Internal, apperr.CodeOf(err))
	txMock.AssertCalled(t, "ClearProjectLock", mock.Anything, "p1", errTest.Error())
	txMock.AssertNotCalled(t, "UpdateProjectAudio", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSave(t *testing.T) {
	m := initTest(t)
	p := withAudio(cleanProject("p1"), 10)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("ReplaceTasks", mock.Anything, "p1", mock.Anything).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	// out of order input gets sorted by start
	err := m.Save(testCtx(t), "p1", []TaskIn{
		{Editor: "e2", Collator: "c", Language: "lt", Start: 4, End: 10},
		{Editor: "e1", Collator: "c", Language: "lt", Start: 0, End: 4},
	})
	require.Nil(t, err)
	txMock.AssertCalled(t, "ReplaceTasks", mock.Anything, "p1", mock.MatchedBy(
		func(tasks []persistence.Task) bool {
			return len(tasks) == 2 && tasks[0].TaskID == 0 && tasks[0].Editor.String == "e1" &&
				tasks[1].TaskID == 1 && tasks[1].Editor.String == "e2"
		}))
}

func TestSave_FailNoAudio(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(cleanProject("p1"), nil)

	err := m.Save(testCtx(t), "p1", []TaskIn{{Editor: "e", Collator: "c", Language: "lt", Start: 0, End: 10}})
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestSave_FailAssigned(t *testing.T) {
	m := initTest(t)
	p := withAudio(cleanProject("p1"), 10)
	p.Assigned = true
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)

	err := m.Save(testCtx(t), "p1", []TaskIn{{Editor: "e", Collator: "c", Language: "lt", Start: 0, End: 10}})
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
	txMock.AssertNotCalled(t, "ReplaceTasks", mock.Anything, mock.Anything, mock.Anything)
	txMock.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestSave_FailGap(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)

	err := m.Save(testCtx(t), "p1", []TaskIn{
		{Editor: "e", Collator: "c", Language: "lt", Start: 0, End: 4},
		{Editor: "e", Collator: "c", Language: "lt", Start: 5, End: 10},
	})
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestSave_FailSpan(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)

	err := m.Save(testCtx(t), "p1", []TaskIn{{Editor: "e", Collator: "c", Language: "lt", Start: 0, End: 9}})
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestSave_FailEmptyFields(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)

	err := m.Save(testCtx(t), "p1", []TaskIn{{Editor: "e", Collator: "", Language: "lt", Start: 0, End: 10}})
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestSave_ToleratesEpsilon(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("ReplaceTasks", mock.Anything, "p1", mock.Anything).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	err := m.Save(testCtx(t), "p1", []TaskIn{
		{Editor: "e", Collator: "c", Language: "lt", Start: 0, End: 4.005},
		{Editor: "e", Collator: "c", Language: "lt", Start: 4, End: 9.995},
	})
	require.Nil(t, err)
}

func TestAssign_FailNoTasks(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{}, nil)

	err := m.Assign(testCtx(t), "p1")
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestAssign_FailNotSpecified(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{
		{ProjectID: "p1", TaskID: 0, Editor: utils.ToSQLStr("e"), Language: utils.ToSQLStr("lt")}}, nil)

	err := m.Assign(testCtx(t), "p1")
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestAssign(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{
		{ProjectID: "p1", TaskID: 0, Editor: utils.ToSQLStr("e"), Collator: utils.ToSQLStr("c"),
			Language: utils.ToSQLStr("lt"), Start: 0, End: 5},
		{ProjectID: "p1", TaskID: 1, Editor: utils.ToSQLStr("e2"), Collator: utils.ToSQLStr("c"),
			Language: utils.ToSQLStr("lt"), Start: 5, End: 10}}, nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", status.PhaseAssign).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	repoMock.On("Init", mock.Anything).Return(nil)
	repoMock.On("Commit", mock.Anything, storage.TextFileName, "task assigned").Return("c1", time.Now(), nil)
	txMock.On("UpdateTaskText", mock.Anything, mock.Anything).Return(nil)
	txMock.On("SetProjectAssigned", mock.Anything, "p1").Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", "").Return(nil)

	err := m.Assign(testCtx(t), "p1")
	require.Nil(t, err)
	txMock.AssertNumberOfCalls(t, "UpdateTaskText", 2)
	txMock.AssertCalled(t, "UpdateTaskText", mock.Anything, mock.MatchedBy(
		func(ts *persistence.Task) bool {
			return ts.CommitID.String == "c1" && ts.TextFile.Valid && ts.Ownership == persistence.OwnershipEditor
		}))
	senderMock.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssign_RepoFailUnlocksWithError(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{
		{ProjectID: "p1", TaskID: 0, Editor: utils.ToSQLStr("e"), Collator: utils.ToSQLStr("c"),
			Language: utils.ToSQLStr("lt"), Start: 0, End: 10}}, nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", status.PhaseAssign).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	repoMock.On("Init", mock.Anything).Return(errTest)
	txMock.On("DeleteRouting", mock.Anything, "p1").Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", errTest.Error()).Return(nil)

	err := m.Assign(testCtx(t), "p1")
	require.Equal(t, apperr.Internal, apperr.CodeOf(err))
	txMock.AssertCalled(t, "ClearProjectLock", mock.Anything, "p1", errTest.Error())
	txMock.AssertNotCalled(t, "SetProjectAssigned", mock.Anything, mock.Anything)
}

func TestUpdate_FailNotAssigned(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(cleanProject("p1"), nil)

	err := m.Update(testCtx(t), "p1", &UpdateIn{})
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestUpdate(t *testing.T) {
	m := initTest(t)
	p := withAudio(cleanProject("p1"), 10)
	p.Assigned = true
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{
		{ProjectID: "p1", TaskID: 0, Editor: utils.ToSQLStr("e"), Collator: utils.ToSQLStr("c"),
			Language: utils.ToSQLStr("lt")}}, nil)
	txMock.On("UpdateTaskAssignment", mock.Anything, mock.Anything).Return(nil)
	txMock.On("UpdateProjectMeta", mock.Anything, "p1", "n", "interview").Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	newEditor, newCategory := "e2", "interview"
	err := m.Update(testCtx(t), "p1", &UpdateIn{Category: &newCategory,
		Tasks: []UpdateTaskIn{{TaskID: 0, Editor: &newEditor}}})
	require.Nil(t, err)
	txMock.AssertCalled(t, "UpdateTaskAssignment", mock.Anything, mock.MatchedBy(
		func(ts *persistence.Task) bool { return ts.Editor.String == "e2" && ts.Collator.String == "c" }))
}

func TestUpdate_FailUnknownTask(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.Assigned = true
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{}, nil)

	err := m.Update(testCtx(t), "p1", &UpdateIn{Tasks: []UpdateTaskIn{{TaskID: 7}}})
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestUpdate_FailOwnership(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.Assigned = true
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("Tasks", mock.Anything, "p1").Return([]persistence.Task{{ProjectID: "p1", TaskID: 0}}, nil)

	wrong := 5
	err := m.Update(testCtx(t), "p1", &UpdateIn{Tasks: []UpdateTaskIn{{TaskID: 0, Ownership: &wrong}}})
	require.Equal(t, apperr.BadRequest, apperr.CodeOf(err))
}

func TestDiarize(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("InsertIncoming", mock.Anything, mock.Anything).Return(nil)
	txMock.On("InsertOutgoing", mock.Anything, mock.Anything).Return(nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", status.PhaseDiarize).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	speechMock.On("Submit", mock.Anything, mock.Anything).Return("job77", nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", "job77").Return(nil)

	err := m.Diarize(testCtx(t), "p1")
	require.Nil(t, err)
	txMock.AssertCalled(t, "SetProjectLock", mock.Anything, "p1", "job77")
	speechMock.AssertCalled(t, "Submit", mock.Anything, mock.MatchedBy(
		func(j *speech.Job) bool {
			return j.Service == "diarize" && strings.HasPrefix(j.GetAudioURL, "http://scribe:8181/io/audio/") &&
				strings.HasPrefix(j.PutResultURL, "http://scribe:8181/io/result/")
		}))
}

func TestDiarize_FailNoAudio(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(cleanProject("p1"), nil)

	err := m.Diarize(testCtx(t), "p1")
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestDiarize_SubmitFailUnlocksWithError(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(withAudio(cleanProject("p1"), 10), nil)
	txMock.On("InsertIncoming", mock.Anything, mock.Anything).Return(nil)
	txMock.On("InsertOutgoing", mock.Anything, mock.Anything).Return(nil)
	txMock.On("SetProjectLock", mock.Anything, "p1", status.PhaseDiarize).Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	speechMock.On("Submit", mock.Anything, mock.Anything).Return("", errTest)
	txMock.On("DeleteRouting", mock.Anything, "p1").Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", errTest.Error()).Return(nil)

	err := m.Diarize(testCtx(t), "p1")
	require.Equal(t, apperr.Internal, apperr.CodeOf(err))
	txMock.AssertCalled(t, "DeleteRouting", mock.Anything, "p1")
	txMock.AssertCalled(t, "ClearProjectLock", mock.Anything, "p1", errTest.Error())
}

func TestDelete(t *testing.T) {
	m := initTest(t)
	p := withAudio(cleanProject("p1"), 10)
	p.ErrStatus = utils.ToSQLStr("old failure")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("DeleteProject", mock.Anything, "p1").Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	filerMock.On("DeleteFile", mock.Anything, p.AudioFile.String).Return(nil)

	err := m.Delete(testCtx(t), "p1")
	require.Nil(t, err)
	filerMock.AssertCalled(t, "DeleteFile", mock.Anything, p.AudioFile.String)
}

func TestDelete_FailLocked(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.JobID = utils.ToSQLStr("job1")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)

	err := m.Delete(testCtx(t), "p1")
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestUnlock_ClearsError(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.ErrStatus = utils.ToSQLStr("boom")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", "").Return(nil)
	txMock.On("Commit", mock.Anything).Return(nil)

	err := m.Unlock(testCtx(t), "p1")
	require.Nil(t, err)
	txMock.AssertCalled(t, "ClearProjectLock", mock.Anything, "p1", "")
	speechMock.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestUnlock_CancelsPendingJob(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.JobID = utils.ToSQLStr("ext123")
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	speechMock.On("Cancel", mock.Anything, "ext123").Return(nil)
	txMock.On("DeleteRouting", mock.Anything, "p1").Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", mock.Anything).Return(nil)

	err := m.Unlock(testCtx(t), "p1")
	require.Nil(t, err)
	speechMock.AssertCalled(t, "Cancel", mock.Anything, "ext123")
	txMock.AssertCalled(t, "ClearProjectLock", mock.Anything, "p1", "cancelled pending job: ext123")
}

func TestUnlock_AssignPhaseDropsDirs(t *testing.T) {
	m := initTest(t)
	p := cleanProject("p1")
	p.JobID = utils.ToSQLStr(status.PhaseAssign)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(p, nil)
	txMock.On("Commit", mock.Anything).Return(nil)
	txMock.On("DeleteRouting", mock.Anything, "p1").Return(nil)
	txMock.On("ClearProjectLock", mock.Anything, "p1", mock.Anything).Return(nil)

	err := m.Unlock(testCtx(t), "p1")
	require.Nil(t, err)
	txMock.AssertCalled(t, "ClearProjectLock", mock.Anything, "p1", "interrupted: "+status.PhaseAssign)
	speechMock.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestUnlock_FailNotLocked(t *testing.T) {
	m := initTest(t)
	txMock.On("ProjectForUpdate", mock.Anything, "p1").Return(cleanProject("p1"), nil)

	err := m.Unlock(testCtx(t), "p1")
	require.Equal(t, apperr.Conflict, apperr.CodeOf(err))
}

func TestCategories(t *testing.T) {
	m := initTest(t)
	require.Equal(t, []string{"court", "interview"}, m.Categories())
}
