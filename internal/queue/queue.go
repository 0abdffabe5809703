package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clip-flow/internal/domain"
)

// ErrAlreadyStarted is returned when Start is called on a running queue.
var ErrAlreadyStarted = errors.New("queue already started")

// jobNamespace seeds deterministic job ids so the same media item in the
// same lane always maps to the same job.
var jobNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// dispatchBuffer bounds the number of pending jobs waiting per lane.
const dispatchBuffer = 256

// Executor runs admitted jobs against the configured provider backends.
type Executor interface {
	ExecuteTranscription(ctx context.Context, req domain.TranscriptionRequest) (*domain.TranscriptionResult, error)
	ExecuteSummarization(ctx context.Context, req domain.SummarizationRequest) (string, error)
}

// Config tunes per-lane worker counts.
type Config struct {
	TranscriptionConcurrency int
	SummarizationConcurrency int
}

// laneState holds one lane's job table and its FIFO dispatch channel.
type laneState struct {
	jobs     map[string]*domain.Job
	dispatch chan string
	workers  int
}

// Queue admits, tracks, and reports on jobs in two independent lanes.
// Execution failures never surface as enqueue errors; they become job state.
type Queue struct {
	mu       sync.Mutex
	executor Executor
	logger   logrus.FieldLogger
	lanes    map[domain.Lane]*laneState
	events   *EventBus
	onChange func(domain.QueueSnapshot)

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a stopped queue with the given executor and lane concurrency.
// Transcription defaults to one worker to avoid overloading a local
// inference engine; summarization defaults to two.
func New(executor Executor, cfg Config, logger logrus.FieldLogger) *Queue {
	if logger == nil {
		base := logrus.New()
		logger = base.WithField("component", "queue")
	}
	if cfg.TranscriptionConcurrency <= 0 {
		cfg.TranscriptionConcurrency = 1
	}
	if cfg.SummarizationConcurrency <= 0 {
		cfg.SummarizationConcurrency = 2
	}

	return &Queue{
		executor: executor,
		logger:   logger,
		events:   NewEventBus(1000),
		lanes: map[domain.Lane]*laneState{
			domain.LaneTranscription: {
				jobs:     make(map[string]*domain.Job),
				dispatch: make(chan string, dispatchBuffer),
				workers:  cfg.TranscriptionConcurrency,
			},
			domain.LaneSummarization: {
				jobs:     make(map[string]*domain.Job),
				dispatch: make(chan string, dispatchBuffer),
				workers:  cfg.SummarizationConcurrency,
			},
		},
	}
}

// SetOnChange registers a callback invoked with a fresh snapshot after every
// queue mutation. Must be called before Start.
func (q *Queue) SetOnChange(fn func(domain.QueueSnapshot)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// JobID derives the stable identifier for a media item within a lane.
func JobID(lane domain.Lane, mediaPath string) string {
	return uuid.NewSHA1(jobNamespace, []byte(string(lane)+":"+mediaPath)).String()
}

// Start launches per-lane worker goroutines that drain the dispatch channels.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	q.mu.Unlock()

	for lane, ls := range q.lanes {
		for i := 0; i < ls.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, lane, ls.dispatch)
		}
	}
	return nil
}

// Stop cancels the worker context and waits for in-flight jobs to settle.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.started = false
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// EnqueueTranscription admits a transcription job for the request's media
// item. Re-submitting while a job is pending or active is a no-op;
// re-submitting after completion or error replaces the prior attempt.
func (q *Queue) EnqueueTranscription(req domain.TranscriptionRequest) {
	job := &domain.Job{
		ID:                   JobID(domain.LaneTranscription, req.MediaPath),
		MediaPath:            req.MediaPath,
		Lane:                 domain.LaneTranscription,
		State:                domain.JobStatePending,
		TranscriptionPayload: &req,
		EnqueuedAt:           time.Now().UTC(),
	}
	q.enqueue(domain.LaneTranscription, job)
}

// EnqueueSummarization admits a summarization job with the same idempotence
// and replacement rules as EnqueueTranscription.
func (q *Queue) EnqueueSummarization(req domain.SummarizationRequest) {
	job := &domain.Job{
		ID:                   JobID(domain.LaneSummarization, req.MediaPath),
		MediaPath:            req.MediaPath,
		Lane:                 domain.LaneSummarization,
		State:                domain.JobStatePending,
		SummarizationPayload: &req,
		EnqueuedAt:           time.Now().UTC(),
	}
	q.enqueue(domain.LaneSummarization, job)
}

// enqueue applies the shared admission rules and schedules dispatch.
func (q *Queue) enqueue(lane domain.Lane, job *domain.Job) {
	q.mu.Lock()
	ls := q.lanes[lane]

	if existing, ok := ls.jobs[job.ID]; ok && !existing.State.IsTerminal() {
		q.mu.Unlock()
		q.logger.WithFields(logrus.Fields{
			"lane":  lane,
			"media": job.MediaPath,
			"state": existing.State,
		}).Debug("duplicate submission absorbed")
		return
	}

	ls.jobs[job.ID] = job
	metricEnqueued.WithLabelValues(string(lane)).Inc()

	select {
	case ls.dispatch <- job.ID:
		q.events.Publish(Event{
			Lane:    lane,
			JobID:   job.ID,
			Type:    EventTypeEnqueued,
			State:   domain.JobStatePending,
			Message: "Job enqueued",
		})
	default:
		// The lane backlog is full; surface the failure as job state
		// rather than blocking or dropping silently.
		job.State = domain.JobStateError
		job.ErrorInfo = fmt.Sprintf("lane backlog full (%d jobs waiting)", dispatchBuffer)
		q.events.Publish(Event{
			Lane:    lane,
			JobID:   job.ID,
			Type:    EventTypeFailed,
			State:   domain.JobStateError,
			Message: job.ErrorInfo,
		})
	}

	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"lane":  lane,
		"media": job.MediaPath,
		"job":   job.ID,
	}).Info("job enqueued")
	q.notify(snap)
}

// HasTranscription reports whether a transcription job exists for the media
// item in any state that has not been cleared or replaced.
func (q *Queue) HasTranscription(mediaPath string) bool {
	return q.has(domain.LaneTranscription, mediaPath)
}

// HasSummarization reports whether a summarization job exists for the media
// item in any state that has not been cleared or replaced.
func (q *Queue) HasSummarization(mediaPath string) bool {
	return q.has(domain.LaneSummarization, mediaPath)
}

func (q *Queue) has(lane domain.Lane, mediaPath string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.lanes[lane].jobs[JobID(lane, mediaPath)]
	return ok
}

// Job returns a copy of the tracked job for a media item in a lane.
func (q *Queue) Job(lane domain.Lane, mediaPath string) (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.lanes[lane].jobs[JobID(lane, mediaPath)]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// Jobs returns copies of a lane's jobs in submission order.
func (q *Queue) Jobs(lane domain.Lane) []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Job, 0, len(q.lanes[lane].jobs))
	for _, job := range q.lanes[lane].jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// ClearCompleted removes every completed job from both lanes. Jobs in error
// state are kept so failures stay visible until re-submitted.
func (q *Queue) ClearCompleted() {
	q.mu.Lock()
	removed := 0
	for lane, ls := range q.lanes {
		for id, job := range ls.jobs {
			if job.State != domain.JobStateCompleted {
				continue
			}
			delete(ls.jobs, id)
			removed++
			q.events.Publish(Event{
				Lane:    lane,
				JobID:   id,
				Type:    EventTypeCleared,
				Message: "Completed job cleared",
			})
		}
	}
	snap := q.snapshotLocked()
	q.mu.Unlock()

	if removed > 0 {
		q.logger.WithField("removed", removed).Info("cleared completed jobs")
		q.notify(snap)
	}
}

// Snapshot returns the externally observable queue state.
func (q *Queue) Snapshot() domain.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Events returns queue lifecycle events with sequence greater than seq.
func (q *Queue) Events(seq int64) []Event {
	return q.events.Since(seq)
}

// snapshotLocked recomputes both lanes' statistics and derived aggregates.
// Callers must hold q.mu.
func (q *Queue) snapshotLocked() domain.QueueSnapshot {
	tStats := laneStats(q.lanes[domain.LaneTranscription].jobs)
	sStats := laneStats(q.lanes[domain.LaneSummarization].jobs)
	setLaneMetrics(domain.LaneTranscription, tStats)
	setLaneMetrics(domain.LaneSummarization, sStats)
	return BuildSnapshot(tStats, sStats)
}

// laneStats projects a lane's live job collection into counters.
func laneStats(jobs map[string]*domain.Job) domain.LaneStats {
	var stats domain.LaneStats
	for _, job := range jobs {
		switch job.State {
		case domain.JobStatePending:
			stats.Pending++
		case domain.JobStateActive:
			stats.Active++
		case domain.JobStateCompleted:
			stats.Completed++
		case domain.JobStateError:
			stats.Error++
		}
	}
	stats.Total = stats.Pending + stats.Active + stats.Completed + stats.Error
	return stats
}

// worker drains one lane's dispatch channel until the context is cancelled.
func (q *Queue) worker(ctx context.Context, lane domain.Lane, dispatch <-chan string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-dispatch:
			q.run(ctx, lane, id)
		}
	}
}

// run executes one dispatched job: pending -> active -> completed|error.
func (q *Queue) run(ctx context.Context, lane domain.Lane, id string) {
	q.mu.Lock()
	job, ok := q.lanes[lane].jobs[id]
	if !ok || job.State != domain.JobStatePending {
		// Cleared or replaced while waiting; the replacement carries its
		// own dispatch token.
		q.mu.Unlock()
		return
	}
	job.State = domain.JobStateActive
	tReq := job.TranscriptionPayload
	sReq := job.SummarizationPayload
	q.events.Publish(Event{
		Lane:    lane,
		JobID:   id,
		Type:    EventTypeStarted,
		State:   domain.JobStateActive,
		Message: "Job dispatched",
	})
	snap := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(snap)

	var result domain.JobResult
	var err error
	switch lane {
	case domain.LaneTranscription:
		result.Transcript, err = q.executor.ExecuteTranscription(ctx, *tReq)
	case domain.LaneSummarization:
		result.Summary, err = q.executor.ExecuteSummarization(ctx, *sReq)
	}

	q.mu.Lock()
	job, ok = q.lanes[lane].jobs[id]
	if !ok || job.State != domain.JobStateActive {
		q.mu.Unlock()
		return
	}

	if err != nil {
		job.State = domain.JobStateError
		job.ErrorInfo = err.Error()
		metricFinished.WithLabelValues(string(lane), "error").Inc()
		q.events.Publish(Event{
			Lane:    lane,
			JobID:   id,
			Type:    EventTypeFailed,
			State:   domain.JobStateError,
			Message: err.Error(),
		})
	} else {
		job.State = domain.JobStateCompleted
		job.Result = &result
		metricFinished.WithLabelValues(string(lane), "completed").Inc()
		q.events.Publish(Event{
			Lane:    lane,
			JobID:   id,
			Type:    EventTypeCompleted,
			State:   domain.JobStateCompleted,
			Message: "Job completed",
		})
	}
	snap = q.snapshotLocked()
	q.mu.Unlock()

	entry := q.logger.WithFields(logrus.Fields{"lane": lane, "job": id})
	if err != nil {
		entry.WithError(err).Warn("job failed")
	} else {
		entry.Info("job completed")
	}
	q.notify(snap)
}

// notify forwards a snapshot to the change callback outside the queue lock.
func (q *Queue) notify(snap domain.QueueSnapshot) {
	q.mu.Lock()
	fn := q.onChange
	q.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
