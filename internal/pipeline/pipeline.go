// Package pipeline runs a finalized recording through transcription,
// extraction and persistence. The HTTP handler and the recording
// orchestrator share it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"voicespese/internal/core"
	"voicespese/internal/log"
	"voicespese/internal/metrics"
	"voicespese/internal/services"
)

type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageExtracting   Stage = "extracting"
	StageSaving       Stage = "saving"
)

type Transcriber interface {
	Transcribe(ctx context.Context, payload core.AudioPayload) (core.TranscriptionResult, error)
}

type Extractor interface {
	Extract(ctx context.Context, text string) ([]core.ExtractedExpense, error)
}

type Saver interface {
	Save(ctx context.Context, userID string, e core.ExtractedExpense, transcription string) (services.SaveResult, error)
}

// Result describes a run. Expenses holds one entry per processed candidate,
// duplicates included. Failed counts the candidate that broke the run plus
// everything after it.
type Result struct {
	Transcription string
	Expenses      []services.SaveResult
	Saved         int
	Skipped       int
	Failed        int
}

// StageFunc is told when the processor enters a stage.
type StageFunc func(Stage)

type Processor struct {
	transcriber Transcriber
	extractor   Extractor
	saver       Saver
	minBytes    int
	logger      *slog.Logger
}

func New(t Transcriber, x Extractor, s Saver, minBytes int) *Processor {
	if minBytes <= 0 {
		minBytes = core.MinPayloadBytes
	}
	return &Processor{
		transcriber: t,
		extractor:   x,
		saver:       s,
		minBytes:    minBytes,
		logger:      log.WithComponent(log.ComponentPipeline),
	}
}

// Process runs every stage in order. Stages never overlap and expenses are
// saved one at a time so the duplicate window sees earlier saves.
func (p *Processor) Process(ctx context.Context, userID string, payload core.AudioPayload, onStage StageFunc) (res Result, err error) {
	if onStage == nil {
		onStage = func(Stage) {}
	}
	defer func() { metrics.RecordOutcome(outcome(err)) }()

	if payload.SizeBytes() < p.minBytes {
		return res, core.Newf(core.KindRecordingTooShort, "recording too short: %d bytes", payload.SizeBytes())
	}

	onStage(StageTranscribing)
	start := time.Now()
	tr, err := p.transcriber.Transcribe(ctx, payload)
	metrics.ObserveStage("transcribe", time.Since(start))
	if err != nil {
		return res, err
	}
	res.Transcription = tr.Text
	if !tr.HasSpeech() {
		return res, core.New(core.KindNoSpeechDetected, "transcription is empty")
	}
	p.logger.DebugContext(ctx, "Transcribed", log.FieldUserID, userID, log.FieldBytes, payload.SizeBytes())

	onStage(StageExtracting)
	start = time.Now()
	expenses, err := p.extractor.Extract(ctx, tr.Text)
	metrics.ObserveStage("extract", time.Since(start))
	if err != nil {
		return res, err
	}
	if len(expenses) == 0 {
		return res, core.New(core.KindCouldNotUnderstand, "no expense found in transcription")
	}

	onStage(StageSaving)
	start = time.Now()
	defer func() { metrics.ObserveStage("save", time.Since(start)) }()
	for i, e := range expenses {
		saved, serr := p.saver.Save(ctx, userID, e, tr.Text)
		if serr != nil {
			res.Failed = len(expenses) - i
			p.logger.ErrorContext(ctx, "Save aborted",
				log.FieldUserID, userID,
				"saved", res.Saved, "skipped", res.Skipped, "failed", res.Failed,
				log.FieldError, serr)
			return res, serr
		}
		res.Expenses = append(res.Expenses, saved)
		if saved.Duplicate {
			res.Skipped++
		} else {
			res.Saved++
		}
	}
	return res, nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(core.KindOf(err))
}
