package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hireloop/api/internal/model"
	"github.com/hireloop/api/internal/service"
	"github.com/hireloop/api/internal/videogen"
	"github.com/hireloop/api/internal/websocket"
)

// RenderWorker processes video render jobs
type RenderWorker struct {
	renderService *service.RenderService
	renderer      *videogen.Renderer
	hub           *websocket.Hub

	// defaultModels reports which model each provider runs when the request
	// carries no override, for the metrics block of the task record.
	defaultModels map[model.Provider]string
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(renderService *service.RenderService, renderer *videogen.Renderer, hub *websocket.Hub, defaultModels map[model.Provider]string) *RenderWorker {
	return &RenderWorker{
		renderService: renderService,
		renderer:      renderer,
		hub:           hub,
		defaultModels: defaultModels,
	}
}

// ProcessTask handles render task processing
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting render job: %s", jobID)

	var payload model.RenderJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, nil, "Invalid payload")
		return fmt.Errorf("failed to unmarshal render payload: %w", err)
	}

	// Cancellation window closes here: a job canceled while queued is
	// dropped, a running render is never interrupted.
	if status, err := w.renderService.GetJobStatus(ctx, jobID); err == nil && status == model.JobStatusCanceled {
		log.Printf("Render job %s was canceled before start, skipping", jobID)
		return nil
	}

	return w.process(ctx, jobID, &payload)
}

func (w *RenderWorker) process(ctx context.Context, jobID string, payload *model.RenderJobPayload) error {
	requestedAt := time.Now()
	task := &model.VideoRenderTask{
		ID:              uuid.New().String(),
		ManifestVersion: payload.ManifestVersion,
		Mode:            payload.Mode,
		Renderer:        payload.Provider,
		RequestedAt:     requestedAt,
		Metrics: model.RenderMetrics{
			Model: w.modelFor(payload),
			Tier:  tierFor(w.modelFor(payload)),
		},
	}

	w.updateProgress(ctx, jobID, 10, "Submitting to provider...")

	req := &videogen.Request{
		Prompt:          payload.Prompt,
		DurationSeconds: payload.DurationSeconds,
		AspectRatio:     string(payload.AspectRatio),
	}
	for provider, opts := range payload.Options {
		if req.ProviderOptions == nil {
			req.ProviderOptions = make(map[string]videogen.Options)
		}
		req.ProviderOptions[provider] = videogen.Options{
			Model:           opts.Model,
			DurationSeconds: opts.DurationSeconds,
			AspectRatio:     opts.AspectRatio,
		}
	}

	w.updateProgress(ctx, jobID, 25, "Generating video...")

	out, err := w.renderer.RenderVideo(ctx, task.ID, string(payload.Provider), req)
	now := time.Now()
	task.CompletedAt = &now

	if err != nil {
		code := videogen.CodeOf(err)
		task.Status = model.JobStatusFailed
		task.Error = &model.RenderTaskError{
			Reason:  string(code),
			Message: err.Error(),
		}
		w.failJob(ctx, jobID, task, err.Error())
		log.Printf("Render job %s failed [%s]: %v", jobID, code, err)
		return err
	}

	w.updateProgress(ctx, jobID, 90, "Finalizing...")

	task.Status = model.JobStatusSucceeded
	task.Result = &model.RenderResult{VideoURL: out.VideoURL}
	task.Metrics.SecondsGenerated = out.Seconds

	if err := w.renderService.CompleteJob(ctx, jobID, task); err != nil {
		w.failJob(ctx, jobID, task, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, task)
	log.Printf("Render job %s completed", jobID)
	return nil
}

// modelFor resolves the model the render will run on, override first.
func (w *RenderWorker) modelFor(payload *model.RenderJobPayload) string {
	if opts, ok := payload.Options[string(payload.Provider)]; ok && opts.Model != "" {
		return opts.Model
	}
	return w.defaultModels[payload.Provider]
}

func tierFor(modelID string) model.ModelTier {
	if strings.Contains(modelID, "pro") {
		return model.TierPro
	}
	return model.TierStandard
}

func (w *RenderWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.renderService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *RenderWorker) failJob(ctx context.Context, jobID string, task *model.VideoRenderTask, errMsg string) {
	if err := w.renderService.FailJob(ctx, jobID, errMsg, task); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	code := "RENDER_FAILED"
	if task != nil && task.Error != nil {
		code = task.Error.Reason
	}
	w.hub.BroadcastError(jobID, code, errMsg)
}
