package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides project/task persistence over postgresql
type Store struct {
	pool *pgxpool.Pool
}

// Tx is one exclusive transaction of the lock protocol. Row level write intent
// is taken by the *ForUpdate selects, so two concurrent operations on the same
// project serialize at the check-lock/set-lock step.
type Tx interface {
	ProjectExists(ctx context.Context, id string) (bool, error)
	ProjectForUpdate(ctx context.Context, id string) (*persistence.Project, error)
	TaskForUpdate(ctx context.Context, projectID string, taskID int) (*persistence.Task, error)
	Tasks(ctx context.Context, projectID string) ([]persistence.Task, error)

	InsertProject(ctx context.Context, p *persistence.Project) error
	UpdateProjectAudio(ctx context.Context, id, audioFile string, duration float64) error
	UpdateProjectMeta(ctx context.Context, id, name, category string) error
	SetProjectAssigned(ctx context.Context, id string) error
	SetProjectLock(ctx context.Context, id, jobID string) error
	ClearProjectLock(ctx context.Context, id, errStatus string) error

	SetTaskLock(ctx context.Context, projectID string, taskID int, jobID string) error
	ClearTaskLock(ctx context.Context, projectID string, taskID int, errStatus string) error
	ReplaceTasks(ctx context.Context, projectID string, tasks []persistence.Task) error
	UpdateTaskAssignment(ctx context.Context, t *persistence.Task) error
	UpdateTaskText(ctx context.Context, t *persistence.Task) error
	UpdateTaskCommit(ctx context.Context, projectID string, taskID int, commitID string, modified time.Time) error
	SetTaskOwnership(ctx context.Context, projectID string, taskID, ownership int) error

	InsertIncoming(ctx context.Context, r *persistence.Incoming) error
	InsertOutgoing(ctx context.Context, r *persistence.Outgoing) error
	TakeIncoming(ctx context.Context, url string) (*persistence.Incoming, error)
	TakeOutgoing(ctx context.Context, url string) (*persistence.Outgoing, error)
	DeleteRouting(ctx context.Context, projectID string) error
	DeleteTaskRouting(ctx context.Context, projectID string, taskID int) error

	DeleteProject(ctx context.Context, id string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// NewStore creates Store instance
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	return &Store{pool: pool}, nil
}

// BeginExclusive starts a transaction serializing with other exclusive transactions
func (s *Store) BeginExclusive(ctx context.Context) (Tx, error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("can't begin tx: %w", err)
	}
	return &tx{tx: pgTx}, nil
}

const projectFields = `id, name, category, owner, audio_file, audio_duration,
	creation_year, created, updated, assigned, job_id, err_status`

const taskFields = `project_id, task_id, editor, collator, start_time, end_time,
	language, text_file, created, modified, commit_id, ownership, creation_year, job_id, err_status`

// LoadProject loads one project, NotFound error if the id does not exist
func (s *Store) LoadProject(ctx context.Context, id string) (*persistence.Project, error) {
	return loadProject(ctx, s.pool, id, "")
}

// ListProjects returns all projects owned by the user
func (s *Store) ListProjects(ctx context.Context, owner string) ([]persistence.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectFields+` FROM projects WHERE owner = $1 ORDER BY created`, owner)
	if err != nil {
		return nil, fmt.Errorf("can't select projects: %w", err)
	}
	defer rows.Close()
	res := []persistence.Project{}
	for rows.Next() {
		var p persistence.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, fmt.Errorf("can't scan project: %w", err)
		}
		res = append(res, p)
	}
	return res, nil
}

// LoadTasks returns the project's tasks ordered by start time
func (s *Store) LoadTasks(ctx context.Context, projectID string) ([]persistence.Task, error) {
	return loadTasks(ctx, s.pool, projectID, "")
}

// LoadTask returns one task, NotFound error if it does not exist
func (s *Store) LoadTask(ctx context.Context, projectID string, taskID int) (*persistence.Task, error) {
	return loadTask(ctx, s.pool, projectID, taskID, "")
}

// ListEditorTasks returns all assigned tasks where the user is the editor or collator
func (s *Store) ListEditorTasks(ctx context.Context, user string) ([]persistence.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskFields+` FROM tasks
		WHERE editor = $1 OR collator = $1 ORDER BY project_id, task_id`, user)
	if err != nil {
		return nil, fmt.Errorf("can't select tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Live returns no error if db is reachable and initialized
func (s *Store) Live(ctx context.Context) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'projects')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}

// LockEmailTable inserts the send marker, fails if the email was already handled
func (s *Store) LockEmailTable(ctx context.Context, id, key string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO email_lock(id, key, status) VALUES ($1, $2, 1)`, id, key)
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	return nil
}

// UnLockEmailTable sets the final send status, 0 drops the marker so the send can be retried
func (s *Store) UnLockEmailTable(ctx context.Context, id, key string, value *int) error {
	var err error
	if value == nil || *value == 0 {
		_, err = s.pool.Exec(ctx, `DELETE FROM email_lock WHERE id = $1 AND key = $2`, id, key)
	} else {
		_, err = s.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 AND key = $2`, id, key, *value)
	}
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProject(r scannable, p *persistence.Project) error {
	return r.Scan(&p.ID, &p.Name, &p.Category, &p.Owner, &p.AudioFile, &p.AudioDuration,
		&p.CreationYear, &p.Created, &p.Updated, &p.Assigned, &p.JobID, &p.ErrStatus)
}

func scanTask(r scannable, t *persistence.Task) error {
	return r.Scan(&t.ProjectID, &t.TaskID, &t.Editor, &t.Collator, &t.Start, &t.End,
		&t.Language, &t.TextFile, &t.Created, &t.Modified, &t.CommitID, &t.Ownership,
		&t.CreationYear, &t.JobID, &t.ErrStatus)
}

func scanTasks(rows pgx.Rows) ([]persistence.Task, error) {
	res := []persistence.Task{}
	for rows.Next() {
		var t persistence.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, fmt.Errorf("can't scan task: %w", err)
		}
		res = append(res, t)
	}
	return res, nil
}

func loadProject(ctx context.Context, q rowQuerier, id, suffix string) (*persistence.Project, error) {
	var p persistence.Project
	err := scanProject(q.QueryRow(ctx, `SELECT `+projectFields+` FROM projects WHERE id = $1`+suffix, id), &p)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "project '%s' not found", id)
		}
		return nil, fmt.Errorf("can't load project: %w", err)
	}
	return &p, nil
}

func loadTask(ctx context.Context, q rowQuerier, projectID string, taskID int, suffix string) (*persistence.Task, error) {
	var t persistence.Task
	err := scanTask(q.QueryRow(ctx, `SELECT `+taskFields+` FROM tasks
		WHERE project_id = $1 AND task_id = $2`+suffix, projectID, taskID), &t)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "task %d of project '%s' not found", taskID, projectID)
		}
		return nil, fmt.Errorf("can't load task: %w", err)
	}
	return &t, nil
}

func loadTasks(ctx context.Context, q rowQuerier, projectID, suffix string) ([]persistence.Task, error) {
	rows, err := q.Query(ctx, `SELECT `+taskFields+` FROM tasks WHERE project_id = $1`+suffix+` ORDER BY task_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("can't select tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (t *tx) ProjectExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT FROM projects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("can't check project: %w", err)
	}
	return exists, nil
}

func (t *tx) ProjectForUpdate(ctx context.Context, id string) (*persistence.Project, error) {
	return loadProject(ctx, t.tx, id, ` FOR UPDATE`)
}

func (t *tx) TaskForUpdate(ctx context.Context, projectID string, taskID int) (*persistence.Task, error) {
	return loadTask(ctx, t.tx, projectID, taskID, ` FOR UPDATE`)
}

func (t *tx) Tasks(ctx context.Context, projectID string) ([]persistence.Task, error) {
	return loadTasks(ctx, t.tx, projectID, "")
}

func (t *tx) InsertProject(ctx context.Context, p *persistence.Project) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO projects(id, name, category, owner, audio_file, audio_duration,
		creation_year, created, assigned, job_id, err_status)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Category, p.Owner, p.AudioFile, p.AudioDuration,
		p.CreationYear, p.Created, p.Assigned, p.JobID, p.ErrStatus)
	if err != nil {
		return fmt.Errorf("can't insert project: %w", err)
	}
	return nil
}

func (t *tx) UpdateProjectAudio(ctx context.Context, id, audioFile string, duration float64) error {
	return t.execOne(ctx, `UPDATE projects SET audio_file = $2, audio_duration = $3, updated = $4 WHERE id = $1`,
		id, audioFile, duration, time.Now())
}

func (t *tx) UpdateProjectMeta(ctx context.Context, id, name, category string) error {
	return t.execOne(ctx, `UPDATE projects SET name = $2, category = $3, updated = $4 WHERE id = $1`,
		id, name, category, time.Now())
}

func (t *tx) SetProjectAssigned(ctx context.Context, id string) error {
	return t.execOne(ctx, `UPDATE projects SET assigned = TRUE, updated = $2 WHERE id = $1`, id, time.Now())
}

func (t *tx) SetProjectLock(ctx context.Context, id, jobID string) error {
	return t.execOne(ctx, `UPDATE projects SET job_id = $2, updated = $3 WHERE id = $1`, id, jobID, time.Now())
}

// ClearProjectLock drops job_id and sets or clears err_status atomically
func (t *tx) ClearProjectLock(ctx context.Context, id, errStatus string) error {
	return t.execOne(ctx, `UPDATE projects SET job_id = NULL, err_status = $2, updated = $3 WHERE id = $1`,
		id, utils.ToSQLStr(errStatus), time.Now())
}

func (t *tx) SetTaskLock(ctx context.Context, projectID string, taskID int, jobID string) error {
	return t.execOne(ctx, `UPDATE tasks SET job_id = $3 WHERE project_id = $1 AND task_id = $2`,
		projectID, taskID, jobID)
}

func (t *tx) ClearTaskLock(ctx context.Context, projectID string, taskID int, errStatus string) error {
	return t.execOne(ctx, `UPDATE tasks SET job_id = NULL, err_status = $3 WHERE project_id = $1 AND task_id = $2`,
		projectID, taskID, utils.ToSQLStr(errStatus))
}

// ReplaceTasks atomically swaps the project's task set
func (t *tx) ReplaceTasks(ctx context.Context, projectID string, tasks []persistence.Task) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM tasks WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("can't delete tasks: %w", err)
	}
	for i := range tasks {
		ts := &tasks[i]
		_, err := t.tx.Exec(ctx, `INSERT INTO tasks(project_id, task_id, editor, collator, start_time, end_time,
			language, text_file, created, modified, commit_id, ownership, creation_year, job_id, err_status)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			ts.ProjectID, ts.TaskID, ts.Editor, ts.Collator, ts.Start, ts.End,
			ts.Language, ts.TextFile, ts.Created, ts.Modified, ts.CommitID, ts.Ownership,
			ts.CreationYear, ts.JobID, ts.ErrStatus)
		if err != nil {
			return fmt.Errorf("can't insert task: %w", err)
		}
	}
	return nil
}

func (t *tx) UpdateTaskAssignment(ctx context.Context, ts *persistence.Task) error {
	return t.execOne(ctx, `UPDATE tasks SET editor = $3, collator = $4, language = $5, ownership = $6
		WHERE project_id = $1 AND task_id = $2`,
		ts.ProjectID, ts.TaskID, ts.Editor, ts.Collator, ts.Language, ts.Ownership)
}

// UpdateTaskText persists the materialized text artifact fields after assignment or a job result
func (t *tx) UpdateTaskText(ctx context.Context, ts *persistence.Task) error {
	return t.execOne(ctx, `UPDATE tasks SET text_file = $3, created = $4, modified = $5, commit_id = $6, ownership = $7
		WHERE project_id = $1 AND task_id = $2`,
		ts.ProjectID, ts.TaskID, ts.TextFile, ts.Created, ts.Modified, ts.CommitID, ts.Ownership)
}

func (t *tx) UpdateTaskCommit(ctx context.Context, projectID string, taskID int, commitID string, modified time.Time) error {
	return t.execOne(ctx, `UPDATE tasks SET commit_id = $3, modified = $4 WHERE project_id = $1 AND task_id = $2`,
		projectID, taskID, commitID, modified)
}

func (t *tx) SetTaskOwnership(ctx context.Context, projectID string, taskID, ownership int) error {
	return t.execOne(ctx, `UPDATE tasks SET ownership = $3 WHERE project_id = $1 AND task_id = $2`,
		projectID, taskID, ownership)
}

func (t *tx) InsertIncoming(ctx context.Context, r *persistence.Incoming) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO incoming(url, project_id, task_id, service_type, created)
	VALUES($1, $2, $3, $4, $5)`, r.URL, r.ProjectID, r.TaskID, r.ServiceType, r.Created)
	if err != nil {
		return fmt.Errorf("can't insert incoming: %w", err)
	}
	return nil
}

func (t *tx) InsertOutgoing(ctx context.Context, r *persistence.Outgoing) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outgoing(url, project_id, task_id, audio_file, start_time, end_time, created)
	VALUES($1, $2, $3, $4, $5, $6, $7)`, r.URL, r.ProjectID, r.TaskID, r.AudioFile, r.Start, r.End, r.Created)
	if err != nil {
		return fmt.Errorf("can't insert outgoing: %w", err)
	}
	return nil
}

// TakeIncoming consumes the routing row: the first access deletes it, a second
// access finds nothing. Returns nil if the url is unknown or already consumed.
func (t *tx) TakeIncoming(ctx context.Context, url string) (*persistence.Incoming, error) {
	var r persistence.Incoming
	err := t.tx.QueryRow(ctx, `DELETE FROM incoming WHERE url = $1
		RETURNING url, project_id, task_id, service_type, created`, url).
		Scan(&r.URL, &r.ProjectID, &r.TaskID, &r.ServiceType, &r.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't take incoming: %w", err)
	}
	return &r, nil
}

// TakeOutgoing consumes the audio routing row, nil if unknown or already consumed
func (t *tx) TakeOutgoing(ctx context.Context, url string) (*persistence.Outgoing, error) {
	var r persistence.Outgoing
	err := t.tx.QueryRow(ctx, `DELETE FROM outgoing WHERE url = $1
		RETURNING url, project_id, task_id, audio_file, start_time, end_time, created`, url).
		Scan(&r.URL, &r.ProjectID, &r.TaskID, &r.AudioFile, &r.Start, &r.End, &r.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't take outgoing: %w", err)
	}
	return &r, nil
}

// DeleteTaskRouting drops the routing rows of one task, the compensating
// delete for task unlock recovery
func (t *tx) DeleteTaskRouting(ctx context.Context, projectID string, taskID int) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM incoming WHERE project_id = $1 AND task_id = $2`,
		projectID, taskID); err != nil {
		return fmt.Errorf("can't delete incoming: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM outgoing WHERE project_id = $1 AND task_id = $2`,
		projectID, taskID); err != nil {
		return fmt.Errorf("can't delete outgoing: %w", err)
	}
	return nil
}

// DeleteRouting drops all routing rows of the project, the compensating delete
// for failed submissions and unlock recovery
func (t *tx) DeleteRouting(ctx context.Context, projectID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM incoming WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("can't delete incoming: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM outgoing WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("can't delete outgoing: %w", err)
	}
	return nil
}

// DeleteProject removes tasks, routing rows and the project row
func (t *tx) DeleteProject(ctx context.Context, id string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM tasks WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("can't delete tasks: %w", err)
	}
	if err := t.DeleteRouting(ctx, id); err != nil {
		return err
	}
	return t.execOne(ctx, `DELETE FROM projects WHERE id = $1`, id)
}

func (t *tx) execOne(ctx context.Context, sql string, args ...any) error {
	cmd, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("can't exec: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't update, no records found")
	}
	return nil
}
