package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"finrag/internal/cache"
)

var (
	ErrJobEnqueue  = errors.New("ingest job enqueue failed")
	ErrJobNotFound = errors.New("ingest job not found")
)

// IngestJob is the queue payload for an asynchronous ingestion.
type IngestJob struct {
	ID         string    `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	IngestInput
}

type JobPublisher interface {
	Publish(ctx context.Context, job IngestJob) error
}

type JobStatusStore interface {
	Put(ctx context.Context, status cache.JobStatus) error
	Get(ctx context.Context, id string) (*cache.JobStatus, error)
}

type Ingester interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
}

type JobService struct {
	publisher JobPublisher
	statuses  JobStatusStore
	ingester  Ingester
}

func NewJobService(publisher JobPublisher, statuses JobStatusStore, ingester Ingester) *JobService {
	return &JobService{
		publisher: publisher,
		statuses:  statuses,
		ingester:  ingester,
	}
}

// Enqueue records the job as queued and publishes it.
func (s *JobService) Enqueue(ctx context.Context, input IngestInput) (*IngestJob, error) {
	input.Ticker = NormalizeTicker(input.Ticker)
	if input.Ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", ErrInvalidInput)
	}
	hasText := false
	for _, sec := range input.Sections {
		if strings.TrimSpace(sec.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, fmt.Errorf("%w: no text to ingest", ErrInvalidInput)
	}

	job := IngestJob{
		ID:          uuid.NewString(),
		EnqueuedAt:  time.Now().UTC(),
		IngestInput: input,
	}
	if err := s.statuses.Put(ctx, cache.JobStatus{ID: job.ID, Ticker: job.Ticker, State: cache.JobQueued}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("record queued status failed")
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		_ = s.statuses.Put(ctx, cache.JobStatus{ID: job.ID, Ticker: job.Ticker, State: cache.JobFailed, Error: err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrJobEnqueue, err)
	}
	log.Info().Str("job_id", job.ID).Str("ticker", job.Ticker).Msg("ingest job enqueued")
	return &job, nil
}

func (s *JobService) Status(ctx context.Context, id string) (*cache.JobStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: job id is not a uuid", ErrInvalidInput)
	}
	status, err := s.statuses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ErrJobNotFound
	}
	return status, nil
}

// Process runs a dequeued job and records its outcome. The returned error is
// the ingestion error, if any.
func (s *JobService) Process(ctx context.Context, job IngestJob) error {
	s.record(ctx, cache.JobStatus{ID: job.ID, Ticker: job.Ticker, State: cache.JobRunning})

	result, err := s.ingester.Ingest(ctx, job.IngestInput)
	if err != nil && ctx.Err() != nil {
		// Shutdown; the worker requeues the message.
		s.record(context.WithoutCancel(ctx), cache.JobStatus{ID: job.ID, Ticker: job.Ticker, State: cache.JobQueued})
		return err
	}
	if err != nil {
		s.record(ctx, cache.JobStatus{ID: job.ID, Ticker: job.Ticker, State: cache.JobFailed, Error: err.Error()})
		return err
	}
	s.record(ctx, cache.JobStatus{ID: job.ID, Ticker: job.Ticker, State: cache.JobSucceeded, ChunkCount: result.ChunkCount})
	return nil
}

func (s *JobService) record(ctx context.Context, status cache.JobStatus) {
	if err := s.statuses.Put(ctx, status); err != nil {
		log.Warn().Err(err).Str("job_id", status.ID).Str("state", string(status.State)).Msg("record job status failed")
	}
}
