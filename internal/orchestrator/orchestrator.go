// Package orchestrator drives one recording from microphone to saved
// expenses as an explicit state machine.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voicespese/internal/capture"
	"voicespese/internal/core"
	"voicespese/internal/log"
	"voicespese/internal/pipeline"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateExtracting
	StateSaving
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateExtracting:
		return "extracting"
	case StateSaving:
		return "saving"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is delivered to the listener on every transition. Err and Message
// are set for Failed; Result is set on the Idle that ends a successful run.
type Status struct {
	State   State
	Err     error
	Message string
	Result  *pipeline.Result
}

type Listener func(Status)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type Recorder interface {
	Start(ctx context.Context, c capture.Constraints) error
	Stop() (core.AudioPayload, error)
	Release()
}

type Processor interface {
	Process(ctx context.Context, userID string, payload core.AudioPayload, onStage pipeline.StageFunc) (pipeline.Result, error)
}

type Option func(*Orchestrator)

func WithConstraints(c capture.Constraints) Option {
	return func(o *Orchestrator) { o.constraints = c }
}

func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.listener = l }
}

// Orchestrator permits one active recording. Start and Stop are serialized;
// listeners run synchronously on the calling goroutine.
type Orchestrator struct {
	auth        Authenticator
	recorder    Recorder
	processor   Processor
	constraints capture.Constraints
	listener    Listener
	logger      *slog.Logger

	op     sync.Mutex
	mu     sync.Mutex
	state  State
	userID string
}

func New(auth Authenticator, recorder Recorder, processor Processor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		auth:        auth,
		recorder:    recorder,
		processor:   processor,
		constraints: capture.DefaultConstraints(),
		listener:    func(Status) {},
		logger:      log.WithComponent(log.ComponentOrchestrator),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) set(s Status) {
	o.mu.Lock()
	o.state = s.State
	o.mu.Unlock()
	o.logger.Debug("State changed", log.FieldState, s.State.String())
	o.listener(s)
}

// fail reports err as Failed, releases the device and settles in Idle.
func (o *Orchestrator) fail(ctx context.Context, err error, res *pipeline.Result) error {
	o.recorder.Release()
	kind := core.KindOf(err)
	o.logger.WarnContext(ctx, "Recording failed",
		log.FieldErrorKind, string(kind), log.FieldError, err)
	o.set(Status{State: StateFailed, Err: err, Message: core.UserMessage(err), Result: res})
	o.mu.Lock()
	o.userID = ""
	o.mu.Unlock()
	o.set(Status{State: StateIdle})
	return err
}

// Start authenticates token and opens the microphone. An active recording
// is released first. Authentication failures leave the device untouched.
func (o *Orchestrator) Start(ctx context.Context, token string) (err error) {
	o.op.Lock()
	defer o.op.Unlock()
	defer o.recoverInto(ctx, &err)

	userID, err := o.authenticate(ctx, token)
	if err != nil {
		if o.State() == StateRecording {
			return err
		}
		return o.fail(ctx, err, nil)
	}

	o.recorder.Release()
	if err := o.recorder.Start(ctx, o.constraints); err != nil {
		return o.fail(ctx, err, nil)
	}

	o.mu.Lock()
	o.userID = userID
	o.mu.Unlock()
	o.set(Status{State: StateRecording})
	o.logger.InfoContext(ctx, "Recording", log.FieldUserID, userID)
	return nil
}

func (o *Orchestrator) authenticate(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", core.New(core.KindAuthRequired, "missing token")
	}
	userID, err := o.auth.Authenticate(ctx, token)
	if err != nil {
		if core.KindOf(err) == core.KindUnexpected {
			return "", core.Wrap(core.KindAuthRequired, "authenticate", err)
		}
		return "", err
	}
	if userID == "" {
		return "", core.New(core.KindAuthRequired, "token resolved to no user")
	}
	return userID, nil
}

// Stop finalizes the recording and runs the pipeline to completion. Outside
// Recording it is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) (res pipeline.Result, err error) {
	o.op.Lock()
	defer o.op.Unlock()

	if o.State() != StateRecording {
		return pipeline.Result{}, nil
	}
	defer o.recoverInto(ctx, &err)

	o.mu.Lock()
	userID := o.userID
	o.mu.Unlock()

	payload, err := o.recorder.Stop()
	o.recorder.Release()
	if err != nil {
		return res, o.fail(ctx, err, nil)
	}

	o.set(Status{State: StateTranscribing})
	res, err = o.processor.Process(ctx, userID, payload, func(stage pipeline.Stage) {
		switch stage {
		case pipeline.StageExtracting:
			o.set(Status{State: StateExtracting})
		case pipeline.StageSaving:
			o.set(Status{State: StateSaving})
		}
	})
	if err != nil {
		return res, o.fail(ctx, err, &res)
	}

	o.mu.Lock()
	o.userID = ""
	o.mu.Unlock()
	o.set(Status{State: StateIdle, Result: &res})
	o.logger.InfoContext(ctx, "Recording processed",
		log.FieldUserID, userID, "saved", res.Saved, "skipped", res.Skipped)
	return res, nil
}

// Release abandons any active recording.
func (o *Orchestrator) Release() {
	o.op.Lock()
	defer o.op.Unlock()
	o.recorder.Release()
	if o.State() != StateIdle {
		o.set(Status{State: StateIdle})
	}
}

func (o *Orchestrator) recoverInto(ctx context.Context, err *error) {
	if r := recover(); r != nil {
		o.logger.ErrorContext(ctx, "Recovered panic", "panic", r)
		*err = o.fail(ctx, core.Wrap(core.KindUnexpected, "internal error", fmt.Errorf("panic: %v", r)), nil)
	}
}
