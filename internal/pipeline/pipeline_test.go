package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicespese/internal/core"
	"voicespese/internal/services"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, core.AudioPayload) (core.TranscriptionResult, error) {
	f.calls++
	return core.TranscriptionResult{Text: f.text}, f.err
}

type fakeExtractor struct {
	out   []core.ExtractedExpense
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string) ([]core.ExtractedExpense, error) {
	f.calls++
	return f.out, f.err
}

type fakeSaver struct {
	failAt int
	dupAt  int
	saved  []core.ExtractedExpense
}

func (f *fakeSaver) Save(_ context.Context, userID string, e core.ExtractedExpense, _ string) (services.SaveResult, error) {
	n := len(f.saved)
	if f.failAt > 0 && n+1 == f.failAt {
		return services.SaveResult{}, core.New(core.KindStorageError, "disk full")
	}
	f.saved = append(f.saved, e)
	return services.SaveResult{
		Expense:   core.PersistedExpense{ID: int64(n + 1), UserID: userID, Amount: e.Amount, Description: e.Description, Category: e.Category},
		Duplicate: f.dupAt > 0 && n+1 == f.dupAt,
	}, nil
}

func payload(n int) core.AudioPayload {
	return core.AudioPayload{Data: bytes.Repeat([]byte{1}, n), MimeType: "audio/wav"}
}

func expense(desc string, cents int64) core.ExtractedExpense {
	return core.ExtractedExpense{Amount: core.Money{Cents: cents}, Category: core.CategoryEssentials, Description: desc}
}

func TestProcessSuccess(t *testing.T) {
	tr := &fakeTranscriber{text: "I spent $25 on lunch at the cafe yesterday"}
	ex := &fakeExtractor{out: []core.ExtractedExpense{expense("lunch at the cafe", 2500)}}
	sv := &fakeSaver{}
	p := New(tr, ex, sv, 0)

	var stages []Stage
	res, err := p.Process(context.Background(), "user-1", payload(2048), func(s Stage) { stages = append(stages, s) })
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageTranscribing, StageExtracting, StageSaving}, stages)
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, tr.text, res.Transcription)
	require.Len(t, res.Expenses, 1)
	assert.Equal(t, int64(2500), res.Expenses[0].Expense.Amount.Cents)
}

func TestProcessTooShortMakesNoCalls(t *testing.T) {
	tr := &fakeTranscriber{text: "x"}
	p := New(tr, &fakeExtractor{}, &fakeSaver{}, 0)

	_, err := p.Process(context.Background(), "u", payload(50), nil)
	assert.True(t, errors.Is(err, core.ErrRecordingTooShort))
	assert.Zero(t, tr.calls)
}

func TestProcessNoSpeechSkipsExtraction(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		ex := &fakeExtractor{}
		p := New(&fakeTranscriber{text: text}, ex, &fakeSaver{}, 0)

		_, err := p.Process(context.Background(), "u", payload(2048), nil)
		assert.Equal(t, core.KindNoSpeechDetected, core.KindOf(err))
		assert.Zero(t, ex.calls)
	}
}

func TestProcessZeroExpenses(t *testing.T) {
	sv := &fakeSaver{}
	p := New(&fakeTranscriber{text: "hello"}, &fakeExtractor{}, sv, 0)

	_, err := p.Process(context.Background(), "u", payload(2048), nil)
	assert.Equal(t, core.KindCouldNotUnderstand, core.KindOf(err))
	assert.Empty(t, sv.saved)
}

func TestProcessPropagatesUpstreamErrors(t *testing.T) {
	upstreamErr := core.Upstream(core.KindServiceError, "transcription failed", "model overloaded", nil)
	p := New(&fakeTranscriber{err: upstreamErr}, &fakeExtractor{}, &fakeSaver{}, 0)

	_, err := p.Process(context.Background(), "u", payload(2048), nil)
	assert.ErrorIs(t, err, core.ErrServiceError)
	assert.Contains(t, core.UserMessage(err), "model overloaded")
}

func TestProcessPartialFailureAbortsRest(t *testing.T) {
	ex := &fakeExtractor{out: []core.ExtractedExpense{
		expense("coffee", 300),
		expense("coffee", 300),
		expense("bus", 200),
		expense("book", 1500),
	}}
	sv := &fakeSaver{dupAt: 2, failAt: 3}
	p := New(&fakeTranscriber{text: "..."}, ex, sv, 0)

	res, err := p.Process(context.Background(), "u", payload(2048), nil)
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, sv.saved, 2)
}
