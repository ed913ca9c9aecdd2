// Package pipeline runs the offline analysis chain: upload validation,
// feature assembly, indicator computation, metadata synthesis, and
// instruction generation, with retry, progress reporting, and a
// confidence gate on the synthesized metadata.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/indicators"
	"github.com/framewise/shotcoach/internal/instruction"
	"github.com/framewise/shotcoach/internal/llm"
	"github.com/framewise/shotcoach/internal/metadata"
	"github.com/framewise/shotcoach/internal/model"
)

// Stage identifies a pipeline phase.
type Stage string

const (
	StageUpload                Stage = "upload"
	StageFeatureExtraction     Stage = "feature_extraction"
	StageHeuristicAnalysis     Stage = "heuristic_analysis"
	StageMetadataSynthesis     Stage = "metadata_synthesis"
	StageInstructionGeneration Stage = "instruction_generation"
	StageCompleted             Stage = "completed"
	StageFailed                Stage = "failed"
)

// Progress is one progress-callback report.
type Progress struct {
	TaskID    string
	Stage     Stage
	Pct       float64
	Message   string
	StartedAt time.Time
	UpdatedAt time.Time
}

// ProgressFunc receives progress reports during a run.
type ProgressFunc func(Progress)

// StageObserverFunc receives per-stage wall durations, for metrics.
type StageObserverFunc func(stage Stage, elapsed time.Duration)

// RetryableError marks a stage failure worth retrying.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable reports whether a stage error should be retried. Model
// client errors carry their own retryability flag.
func Retryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	return llm.IsRetryable(err)
}

// Config holds orchestration settings.
type Config struct {
	// Default frame dimensions applied when the bundle omits them.
	DefaultWidth  int `yaml:"default_width"`
	DefaultHeight int `yaml:"default_height"`

	// Confidence cut points for the gate after metadata synthesis.
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`

	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`

	// StageTimeout bounds each stage call; zero disables the bound.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	ValidateMetadata    bool `yaml:"validate_metadata"`
	AutoCompleteMissing bool `yaml:"auto_complete_missing"`
}

// DefaultConfig returns the standard orchestration settings.
func DefaultConfig() Config {
	return Config{
		DefaultWidth:        640,
		DefaultHeight:       360,
		HighConfidence:      0.75,
		MediumConfidence:    0.55,
		MaxRetries:          3,
		BaseDelay:           time.Second,
		MaxDelay:            30 * time.Second,
		StageTimeout:        60 * time.Second,
		ValidateMetadata:    true,
		AutoCompleteMissing: true,
	}
}

// Bundle is the analyze entry-point input: pre-extracted features for
// one clip as delivered by the external extractor.
type Bundle struct {
	VideoID         string                `json:"video_id,omitempty"`
	FrameCount      int                   `json:"frame_count"`
	FPS             float64               `json:"fps"`
	DurationS       float64               `json:"duration_s,omitempty"`
	Width           int                   `json:"width,omitempty"`
	Height          int                   `json:"height,omitempty"`
	Exif            model.ExifData        `json:"exif,omitempty"`
	OpticalFlow     model.OpticalFlowData `json:"optical_flow"`
	SubjectTracking model.SubjectTracking `json:"subject_tracking"`
	AudioBeats      []float64             `json:"audio_beats,omitempty"`
}

// Result carries every stage output produced before completion or
// failure, plus the confidence gate decision.
type Result struct {
	VideoID          string                    `json:"video_id"`
	Upload           *model.UploadBundle       `json:"upload,omitempty"`
	Features         *model.FeatureOutput      `json:"features,omitempty"`
	Indicators       *model.HeuristicIndicators `json:"indicators,omitempty"`
	Metadata         *model.MetadataOutput     `json:"metadata,omitempty"`
	Instruction      *model.InstructionCard    `json:"instruction,omitempty"`
	ConfidenceAction metadata.Action           `json:"confidence_action,omitempty"`
	Error            string                    `json:"error,omitempty"`
}

// ConfidenceMessage returns the user-facing prompt for a gate decision.
// Proceed has no message.
func ConfidenceMessage(action metadata.Action) string {
	switch action {
	case metadata.ActionWarn:
		return "请尝试并拍摄两条版本"
	case metadata.ActionManual:
		return "置信度较低，建议人工确认后再执行"
	default:
		return ""
	}
}

// Orchestrator drives one pipeline invocation at a time. Safe for
// concurrent Run calls; all mutable state is per-run.
type Orchestrator struct {
	cfg          Config
	kernel       *indicators.Kernel
	synthesizer  *metadata.Synthesizer
	generator    *instruction.Generator
	logger       zerolog.Logger
	progress     ProgressFunc
	observeStage StageObserverFunc
}

// NewOrchestrator wires the stage implementations together. A zero
// config gets defaults.
func NewOrchestrator(cfg Config, synth *metadata.Synthesizer, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxRetries == 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:         cfg,
		kernel:      indicators.NewKernel(indicators.DefaultConfig()),
		synthesizer: synth,
		generator:   instruction.NewGenerator(instruction.DefaultConfig()),
		logger:      logger.With().Str("component", "orchestrator").Logger(),
	}
}

// SetProgressFunc installs the progress callback. Must be set before
// Run.
func (o *Orchestrator) SetProgressFunc(fn ProgressFunc) { o.progress = fn }

// SetStageObserver installs the per-stage duration observer.
func (o *Orchestrator) SetStageObserver(fn StageObserverFunc) { o.observeStage = fn }

// Run executes the full pipeline over one bundle. Failures are reported
// in the result's Error field alongside every partial stage output.
func (o *Orchestrator) Run(ctx context.Context, bundle Bundle) Result {
	startedAt := time.Now().UTC()
	taskID := bundle.VideoID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	result := Result{VideoID: taskID}

	fail := func(err error) Result {
		if errors.Is(err, context.Canceled) {
			result.Error = "cancelled"
		} else {
			result.Error = err.Error()
		}
		o.logger.Error().Err(err).Str("video_id", taskID).Msg("pipeline failed")
		o.report(taskID, StageFailed, 0, "处理失败: "+result.Error, startedAt)
		return result
	}

	o.report(taskID, StageUpload, 0, "开始处理视频...", startedAt)
	upload, err := retryStage(ctx, o, StageUpload, func(ctx context.Context) (model.UploadBundle, error) {
		return o.uploadStage(bundle, taskID)
	})
	if err != nil {
		return fail(err)
	}
	result.Upload = &upload
	o.report(taskID, StageUpload, 20, "视频预处理完成", startedAt)

	o.report(taskID, StageFeatureExtraction, 20, "正在提取特征...", startedAt)
	features, err := retryStage(ctx, o, StageFeatureExtraction, func(ctx context.Context) (model.FeatureOutput, error) {
		return o.featureStage(bundle, taskID)
	})
	if err != nil {
		return fail(err)
	}
	result.Features = &features
	o.report(taskID, StageFeatureExtraction, 50, "特征提取完成", startedAt)

	o.report(taskID, StageHeuristicAnalysis, 50, "正在分析运动特征...", startedAt)
	timeRange := [2]float64{0, upload.DurationS}
	ind, err := retryStage(ctx, o, StageHeuristicAnalysis, func(ctx context.Context) (model.HeuristicIndicators, error) {
		return o.kernel.Compute(features, timeRange), nil
	})
	if err != nil {
		return fail(err)
	}
	result.Indicators = &ind
	o.report(taskID, StageHeuristicAnalysis, 70, "运动分析完成", startedAt)

	o.report(taskID, StageMetadataSynthesis, 70, "正在生成元数据...", startedAt)
	direction := features.OpticalFlow.PrimaryDirectionDeg
	meta, err := retryStage(ctx, o, StageMetadataSynthesis, func(ctx context.Context) (model.MetadataOutput, error) {
		return o.synthesizer.Synthesize(ctx, ind, &upload.Exif, &direction)
	})
	if err != nil {
		return fail(err)
	}
	if o.cfg.ValidateMetadata {
		if errs := metadata.ValidateMetadata(meta); len(errs) > 0 {
			o.logger.Warn().Strs("errors", errs).Str("video_id", taskID).Msg("metadata validation errors")
			if o.cfg.AutoCompleteMissing {
				meta = metadata.RepairMetadata(meta)
			}
		}
	}
	result.Metadata = &meta
	o.report(taskID, StageMetadataSynthesis, 85, "元数据生成完成", startedAt)

	o.report(taskID, StageInstructionGeneration, 85, "正在生成拍摄指令...", startedAt)
	card, err := retryStage(ctx, o, StageInstructionGeneration, func(ctx context.Context) (model.InstructionCard, error) {
		return o.generator.Generate(meta, taskID), nil
	})
	if err != nil {
		return fail(err)
	}
	result.Instruction = &card

	result.ConfidenceAction = metadata.ConfidenceAction(meta.Confidence)
	if msg := ConfidenceMessage(result.ConfidenceAction); msg != "" {
		o.logger.Info().
			Str("video_id", taskID).
			Str("action", string(result.ConfidenceAction)).
			Msg(msg)
	}

	o.report(taskID, StageCompleted, 100, "分析完成", startedAt)
	return result
}

// uploadStage validates and normalizes the inbound bundle.
func (o *Orchestrator) uploadStage(bundle Bundle, taskID string) (model.UploadBundle, error) {
	if bundle.FPS <= 0 {
		return model.UploadBundle{}, fmt.Errorf("upload: fps (%g) must be > 0", bundle.FPS)
	}
	if bundle.FrameCount <= 0 {
		return model.UploadBundle{}, fmt.Errorf("upload: frame_count (%d) must be > 0", bundle.FrameCount)
	}

	duration := bundle.DurationS
	if duration <= 0 {
		duration = float64(bundle.FrameCount) / bundle.FPS
	}
	width, height := bundle.Width, bundle.Height
	if width <= 0 {
		width = o.cfg.DefaultWidth
	}
	if height <= 0 {
		height = o.cfg.DefaultHeight
	}

	return model.UploadBundle{
		VideoID:    taskID,
		FrameCount: bundle.FrameCount,
		FPS:        bundle.FPS,
		DurationS:  duration,
		Width:      width,
		Height:     height,
		Exif:       bundle.Exif,
	}, nil
}

// featureStage checks tracking consistency and assembles the feature
// record consumed by the indicator kernel.
func (o *Orchestrator) featureStage(bundle Bundle, taskID string) (model.FeatureOutput, error) {
	tracking := bundle.SubjectTracking
	if n := len(tracking.BBoxes); n > 0 {
		if len(tracking.Timestamps) != n {
			return model.FeatureOutput{}, fmt.Errorf(
				"feature_extraction: subject_tracking.timestamps length (%d) must match bbox_sequence (%d)",
				len(tracking.Timestamps), n)
		}
		if m := len(tracking.Confidences); m != 0 && m != n {
			return model.FeatureOutput{}, fmt.Errorf(
				"feature_extraction: subject_tracking.confidence_scores length (%d) must match bbox_sequence (%d)", m, n)
		}
		for i := 1; i < len(tracking.Timestamps); i++ {
			if tracking.Timestamps[i] <= tracking.Timestamps[i-1] {
				return model.FeatureOutput{}, fmt.Errorf(
					"feature_extraction: subject_tracking.timestamps[%d] (%g) must increase", i, tracking.Timestamps[i])
			}
		}
		normalized := make([]model.BBox, n)
		for i, b := range tracking.BBoxes {
			normalized[i] = b.Normalize()
		}
		tracking.BBoxes = normalized
	}

	return model.FeatureOutput{
		VideoID:         taskID,
		OpticalFlow:     bundle.OpticalFlow,
		SubjectTracking: tracking,
		AudioBeats:      bundle.AudioBeats,
	}, nil
}

// retryStage invokes one stage with the shared retry, timeout, and
// observation wrapping.
func retryStage[T any](ctx context.Context, o *Orchestrator, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		stageCtx := ctx
		var cancel context.CancelFunc
		if o.cfg.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		}
		started := time.Now()
		out, err := fn(stageCtx)
		if cancel != nil {
			cancel()
		}
		if o.observeStage != nil {
			o.observeStage(stage, time.Since(started))
		}
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !Retryable(err) {
			return zero, err
		}

		lastErr = err
		delay := o.backoffDelay(attempt)
		o.logger.Warn().
			Err(err).
			Str("stage", string(stage)).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retryable stage error")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

// backoffDelay is base·2^attempt capped at MaxDelay, with ±20% jitter.
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	delay := o.cfg.BaseDelay << uint(attempt)
	if delay > o.cfg.MaxDelay || delay <= 0 {
		delay = o.cfg.MaxDelay
	}
	jitter := 1 + 0.2*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * jitter)
}

func (o *Orchestrator) report(taskID string, stage Stage, pct float64, message string, startedAt time.Time) {
	if o.progress == nil {
		return
	}
	o.progress(Progress{
		TaskID:    taskID,
		Stage:     stage,
		Pct:       pct,
		Message:   message,
		StartedAt: startedAt,
		UpdatedAt: time.Now().UTC(),
	})
}
