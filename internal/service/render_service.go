package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hireloop/api/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	TaskTypeRender = "render:video"
)

// RenderService handles video render job management
type RenderService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewRenderService(redisClient *redis.Client, asynqClient *asynq.Client) *RenderService {
	return &RenderService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// StartRender queues a new video render job
func (s *RenderService) StartRender(ctx context.Context, req *model.RenderStartRequest) (*model.RenderStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	// Create job record
	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeRender,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	// Create payload
	payload := &model.RenderJobPayload{
		Provider:        req.Provider,
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     req.AspectRatio,
		Mode:            req.Mode,
		ManifestVersion: req.ManifestVersion,
		Options:         req.Options,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job.Payload = payloadBytes

	// Save job to Redis
	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	// Create Asynq task
	task, err := newRenderTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Enqueue the task. MaxRetry 0: a render attempt is terminal, callers
	// decide whether to resubmit on RATE_LIMITED.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("render"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.RenderStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a render job
func (s *RenderService) GetStatus(ctx context.Context, jobID string) (*model.RenderStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.RenderStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		RetryCount:  job.RetryCount,
	}, nil
}

// GetResult returns the task record of a terminal render job
func (s *RenderService) GetResult(ctx context.Context, jobID string) (*model.VideoRenderTask, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded && job.Status != model.JobStatusFailed {
		return nil, fmt.Errorf("job not completed")
	}

	var task model.VideoRenderTask
	if err := json.Unmarshal(job.Result, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &task, nil
}

// CancelRender cancels a queued render job. A job the worker already picked
// up keeps running; the poll loop has no per-render cancellation token.
func (s *RenderService) CancelRender(ctx context.Context, jobID string) (*model.RenderCancelResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusSucceeded || job.Status == model.JobStatusFailed {
		return nil, fmt.Errorf("job already completed")
	}
	if job.Status == model.JobStatusRunning {
		return nil, fmt.Errorf("job already running")
	}

	job.Status = model.JobStatusCanceled
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}

	return &model.RenderCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *RenderService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as succeeded and stores the task record (called by worker)
func (s *RenderService) CompleteJob(ctx context.Context, jobID string, task *model.VideoRenderTask) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed and stores the task record (called by worker)
func (s *RenderService) FailJob(ctx context.Context, jobID string, errMsg string, task *model.VideoRenderTask) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	if task != nil {
		if resultBytes, err := json.Marshal(task); err == nil {
			job.Result = resultBytes
		}
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// GetJobStatus returns just the stored status, used by the worker to honor
// cancellation before starting work.
func (s *RenderService) GetJobStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Helper methods

func (s *RenderService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, 24*time.Hour).Err()
}

func (s *RenderService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newRenderTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, data), nil
}
