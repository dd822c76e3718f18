package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

type JobStatus struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	State      JobState  `json:"state"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobStatusStore records ingestion job progress in Redis with a TTL.
type JobStatusStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewJobStatusStore(client *redisv9.Client, ttl time.Duration) *JobStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JobStatusStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *JobStatusStore) Put(ctx context.Context, status JobStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal job status failed: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(status.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set job status failed: %w", err)
	}
	return nil
}

// Get returns nil, nil when the job is unknown or expired.
func (s *JobStatusStore) Get(ctx context.Context, id string) (*JobStatus, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job status failed: %w", err)
	}
	var status JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("unmarshal job status failed: %w", err)
	}
	return &status, nil
}

func jobKey(id string) string {
	return fmt.Sprintf("ingest:job:%s", id)
}
