package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whisper-web/backend/internal/transcribe"
)

// Queue persists runs in sqlite and processes them with a single worker, one
// run at a time. Transcription occupies the whole process while it lasts, so
// there is nothing to gain from concurrent jobs; a single worker also keeps
// engine access naturally serialized.
type Queue struct {
	db      *sql.DB
	handler Handler
	mu      sync.Mutex
	pending chan string // job IDs to process
	cancels map[string]context.CancelFunc
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewQueue creates and starts a queue. Runs left pending or running by a
// previous process are re-queued.
func NewQueue(db *sql.DB, handler Handler) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		db:      db,
		handler: handler,
		pending: make(chan string, 100),
		cancels: make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}

	go q.resumeJobs()
	go q.worker()

	return q
}

// Enqueue creates a new run and hands it to the worker.
func (q *Queue) Enqueue(sourceType SourceType, source string, opts transcribe.Options) (*Job, error) {
	paramsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	j := &Job{
		ID:         uuid.New().String(),
		Status:     StatusPending,
		SourceType: sourceType,
		Source:     source,
		Params:     paramsJSON,
		CreatedAt:  time.Now(),
	}

	_, err = q.db.Exec(`
		INSERT INTO jobs (id, status, source_type, source, params, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Status, j.SourceType, j.Source, string(j.Params), j.Progress, j.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	select {
	case q.pending <- j.ID:
	default:
		log.Printf("[job] queue full, job %s waits for restart pickup", j.ID)
	}

	return j, nil
}

const jobColumns = "id, status, source_type, source, params, progress, result, error, created_at, started_at, completed_at"

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	j := &Job{}
	var params, result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.Status, &j.SourceType, &j.Source, &params, &j.Progress,
		&result, &errMsg, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if params.Valid {
		j.Params = json.RawMessage(params.String)
	}
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

// Get retrieves a run by ID.
func (q *Queue) Get(id string) (*Job, error) {
	row := q.db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	return scanJob(row)
}

// List returns all runs, newest first.
func (q *Queue) List() ([]*Job, error) {
	rows, err := q.db.Query("SELECT " + jobColumns + " FROM jobs ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Cancel stops a pending or running run.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	if cancelFn, ok := q.cancels[id]; ok {
		cancelFn()
		delete(q.cancels, id)
	}
	q.mu.Unlock()

	_, err := q.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled, time.Now(), id, StatusPending, StatusRunning,
	)
	return err
}

// Retry re-queues a failed or cancelled run.
func (q *Queue) Retry(id string) error {
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, progress = 0, error = '', result = NULL,
			started_at = NULL, completed_at = NULL
		WHERE id = ? AND status IN (?, ?)`,
		StatusPending, id, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s is not failed or cancelled", id)
	}

	select {
	case q.pending <- id:
	default:
	}
	return nil
}

func (q *Queue) updateProgress(id string, progress float64) {
	q.db.Exec("UPDATE jobs SET progress = ? WHERE id = ?", progress, id)
}

// Stop shuts down the worker.
func (q *Queue) Stop() {
	q.cancel()
}

func (q *Queue) worker() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case jobID := <-q.pending:
			q.processJob(jobID)
		}
	}
}

func (q *Queue) processJob(jobID string) {
	j, err := q.Get(jobID)
	if err != nil {
		log.Printf("[job] failed to load job %s: %v", jobID, err)
		return
	}
	if j.Status != StatusPending {
		return
	}

	now := time.Now()
	j.StartedAt = &now
	j.Status = StatusRunning
	q.db.Exec("UPDATE jobs SET status = ?, started_at = ? WHERE id = ?",
		StatusRunning, now, j.ID)

	ctx, cancelFn := context.WithCancel(q.ctx)
	q.mu.Lock()
	q.cancels[j.ID] = cancelFn
	q.mu.Unlock()

	updateProgress := func(progress float64) {
		q.updateProgress(j.ID, progress)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.handler(ctx, j, updateProgress)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[job] job %s cancelled", j.ID)
	case err := <-done:
		if err != nil {
			q.failJob(j, err.Error())
		} else {
			q.completeJob(j)
		}
	}

	q.mu.Lock()
	delete(q.cancels, j.ID)
	q.mu.Unlock()
	cancelFn()
}

func (q *Queue) completeJob(j *Job) {
	now := time.Now()
	q.db.Exec("UPDATE jobs SET status = ?, progress = 1.0, result = ?, completed_at = ? WHERE id = ?",
		StatusCompleted, string(j.Result), now, j.ID)
	log.Printf("[job] job %s completed", j.ID)
}

func (q *Queue) failJob(j *Job, errMsg string) {
	now := time.Now()
	q.db.Exec("UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?",
		StatusFailed, errMsg, now, j.ID)
	log.Printf("[job] job %s failed: %s", j.ID, errMsg)
}

// resumeJobs re-queues pending runs found in the DB on startup. Runs caught
// mid-flight by a restart go back to pending and start over.
func (q *Queue) resumeJobs() {
	q.db.Exec("UPDATE jobs SET status = ? WHERE status = ?", StatusPending, StatusRunning)

	rows, err := q.db.Query("SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC", StatusPending)
	if err != nil {
		log.Printf("[job] failed to resume jobs: %v", err)
		return
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		select {
		case q.pending <- id:
			count++
		default:
		}
	}

	if count > 0 {
		log.Printf("[job] resumed %d pending jobs", count)
	}
}
