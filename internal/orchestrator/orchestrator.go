// Package orchestrator sequences one conversion request through its pipeline:
// validate, fetch, convert, upload, notify. Any stage failure short-circuits
// to cleanup and a stage-named error; removal of the per-request working
// directory happens exactly once on every exit path.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/renderq/renderq/internal/converter"
	"github.com/renderq/renderq/internal/fetcher"
	"github.com/renderq/renderq/internal/ledger"
	"github.com/renderq/renderq/internal/metrics"
	"github.com/renderq/renderq/internal/notifier"
	"github.com/renderq/renderq/internal/uploader"
	"github.com/renderq/renderq/internal/validation"
	"github.com/renderq/renderq/pkg/domain"
)

// Stage names, used as error prefixes and metric labels.
const (
	StageValidate = "Validation failed"
	StageFetch    = "PDF download failed"
	StageConvert  = "Conversion failed"
	StageUpload   = "Upload failed"
)

type Orchestrator struct {
	validator *validation.URLValidator
	fetcher   *fetcher.Fetcher
	engine    converter.Engine
	uploader  *uploader.Uploader
	notifier  *notifier.Notifier
	ledger    ledger.Ledger
	logger    *slog.Logger
	workRoot  string
	dpi       int
}

func New(
	validator *validation.URLValidator,
	f *fetcher.Fetcher,
	engine converter.Engine,
	u *uploader.Uploader,
	n *notifier.Notifier,
	l ledger.Ledger,
	logger *slog.Logger,
	workRoot string,
	dpi int,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &Orchestrator{
		validator: validator,
		fetcher:   f,
		engine:    engine,
		uploader:  u,
		notifier:  n,
		ledger:    l,
		logger:    logger,
		workRoot:  workRoot,
		dpi:       dpi,
	}
}

// Process runs one request to completion or failure. Validation errors return
// before any resource is allocated; once the working directory exists its
// removal is deferred and unconditional. The webhook outcome never changes
// the pipeline's own result.
func (o *Orchestrator) Process(ctx context.Context, req domain.ConversionRequest) (*domain.ConversionResult, error) {
	started := time.Now()

	if err := o.validate(req); err != nil {
		metrics.ConversionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	o.record(ctx, req, domain.RequestRecord{
		RequestID: req.RequestID,
		Status:    domain.StatusValidated,
		StartedAt: started.UTC(),
	})

	workDir, err := os.MkdirTemp(o.workRoot, "renderq-"+req.RequestID+"-")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			o.logger.Warn("working directory cleanup failed", "requestId", req.RequestID, "err", rmErr)
		}
	}()

	result, err := o.run(ctx, req, workDir, started)
	elapsed := time.Since(started)

	if err != nil {
		o.finishFailed(ctx, req, started, elapsed, err)
		return nil, err
	}

	o.notifyCompletion(ctx, req, result, elapsed)
	o.record(ctx, req, domain.RequestRecord{
		RequestID:  req.RequestID,
		Status:     domain.StatusCompleted,
		Pages:      result.PagesConverted,
		Images:     result.Images,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	})
	metrics.ConversionsTotal.WithLabelValues("completed").Inc()
	metrics.ConversionLatencySeconds.WithLabelValues("completed").Observe(elapsed.Seconds())
	metrics.PagesConverted.Observe(float64(result.PagesConverted))

	result.Duration = elapsed
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req domain.ConversionRequest, workDir string, started time.Time) (*domain.ConversionResult, error) {
	doc, err := o.fetcher.Fetch(ctx, req.Source)
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues("fetch").Inc()
		return nil, domain.NewStageError(StageFetch, err)
	}
	o.record(ctx, req, domain.RequestRecord{
		RequestID: req.RequestID, Status: domain.StatusFetched, StartedAt: started.UTC(),
	})

	out, err := o.engine.Convert(ctx, doc.Content, workDir, req.RequestID, converter.Options{DPI: o.dpi})
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues("convert").Inc()
		return nil, domain.NewStageError(StageConvert, err)
	}
	o.record(ctx, req, domain.RequestRecord{
		RequestID: req.RequestID, Status: domain.StatusConverted, Pages: out.PageCount, StartedAt: started.UTC(),
	})

	locations, err := o.uploader.UploadAll(ctx, req.Destination, out.Images)
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues("upload").Inc()
		return nil, domain.NewStageError(StageUpload, err)
	}
	o.record(ctx, req, domain.RequestRecord{
		RequestID: req.RequestID, Status: domain.StatusUploaded, Pages: out.PageCount, StartedAt: started.UTC(),
	})

	return &domain.ConversionResult{
		RequestID:      req.RequestID,
		Status:         domain.StatusCompleted,
		Images:         locations,
		PagesConverted: out.PageCount,
		Metadata:       out.Metadata,
	}, nil
}

// validate checks every externally supplied value before any network call.
func (o *Orchestrator) validate(req domain.ConversionRequest) error {
	if req.RequestID == "" {
		return &domain.ValidationError{Field: "unique_id", Reason: "required"}
	}
	if !domain.ValidRequestID(req.RequestID) {
		return &domain.ValidationError{Field: "unique_id", Reason: "must match [A-Za-z0-9_-]+"}
	}
	if req.Source == "" {
		return &domain.ValidationError{Field: "source", Reason: "required"}
	}
	if res := o.validator.ValidateSource(req.Source); !res.Valid {
		return &domain.ValidationError{Field: "source", Reason: res.Reason}
	}
	if req.Destination == "" {
		return &domain.ValidationError{Field: "destination", Reason: "required"}
	}
	if res := o.validator.ValidateDestination(req.Destination); !res.Valid {
		return &domain.ValidationError{Field: "destination", Reason: res.Reason}
	}
	if req.Webhook != "" {
		if res := o.validator.ValidateWebhook(req.Webhook); !res.Valid {
			return &domain.ValidationError{Field: "webhook", Reason: res.Reason}
		}
	}
	return nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, req domain.ConversionRequest, started time.Time, elapsed time.Duration, cause error) {
	if req.Webhook != "" {
		_ = o.notifier.NotifyFailure(ctx, req.Webhook, notifier.Payload{
			RequestID:  req.RequestID,
			Status:     "failed",
			DurationMs: elapsed.Milliseconds(),
			Error:      cause.Error(),
		})
	}
	o.record(ctx, req, domain.RequestRecord{
		RequestID:  req.RequestID,
		Status:     domain.StatusFailed,
		Error:      cause.Error(),
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	})
	metrics.ConversionsTotal.WithLabelValues("failed").Inc()
	metrics.ConversionLatencySeconds.WithLabelValues("failed").Observe(elapsed.Seconds())
	o.logger.Error("conversion failed", "requestId", req.RequestID, "err", cause)
}

func (o *Orchestrator) notifyCompletion(ctx context.Context, req domain.ConversionRequest, result *domain.ConversionResult, elapsed time.Duration) {
	if req.Webhook == "" {
		return
	}
	// Best-effort: a webhook failure never flips the response to failure.
	_ = o.notifier.Notify(ctx, req.Webhook, notifier.Payload{
		RequestID:         req.RequestID,
		Status:            "completed",
		ArtifactLocations: result.Images,
		PageCount:         result.PagesConverted,
		DurationMs:        elapsed.Milliseconds(),
	})
}

func (o *Orchestrator) record(ctx context.Context, req domain.ConversionRequest, rec domain.RequestRecord) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.Save(ctx, rec); err != nil {
		o.logger.Warn("ledger write failed", "requestId", req.RequestID, "err", err)
	}
}
