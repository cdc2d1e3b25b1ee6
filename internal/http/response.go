package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"

	"voicespese/internal/core"
	vlog "voicespese/internal/log"
	"voicespese/internal/pipeline"
	"voicespese/internal/services"
)

type expenseJSON struct {
	ID            int64   `json:"id"`
	Amount        float64 `json:"amount"`
	AmountCents   int64   `json:"amountCents"`
	Category      string  `json:"category"`
	CategoryID    int64   `json:"categoryId"`
	Description   string  `json:"description"`
	Transcription string  `json:"transcription,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	Archived      bool    `json:"archived"`
	Duplicate     bool    `json:"duplicate,omitempty"`
}

type voiceResponse struct {
	Success       bool          `json:"success"`
	Expense       []expenseJSON `json:"expense,omitempty"`
	Transcription string        `json:"transcription,omitempty"`
	Error         string        `json:"error,omitempty"`
	Kind          string        `json:"kind,omitempty"`
	Saved         int           `json:"saved"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
}

type listResponse struct {
	Success  bool          `json:"success"`
	Expenses []expenseJSON `json:"expenses"`
	Summary  summaryJSON   `json:"summary"`
}

type categoryTotalJSON struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

type summaryJSON struct {
	Total      float64             `json:"total"`
	Count      int                 `json:"count"`
	ByCategory []categoryTotalJSON `json:"byCategory"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

func toJSON(e core.PersistedExpense, duplicate bool) expenseJSON {
	return expenseJSON{
		ID:            e.ID,
		Amount:        e.Amount.Euros(),
		AmountCents:   e.Amount.Cents,
		Category:      string(e.Category),
		CategoryID:    e.CategoryID,
		Description:   e.Description,
		Transcription: e.Transcription,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
		Archived:      e.Archived,
		Duplicate:     duplicate,
	}
}

func toSummaryJSON(s core.ExpenseSummary) summaryJSON {
	return summaryJSON{
		Total: s.Total.Euros(),
		Count: s.Count,
		ByCategory: lo.Map(s.ByCategory, func(c core.CategoryAmount, _ int) categoryTotalJSON {
			return categoryTotalJSON{Category: string(c.Category), Amount: c.Amount.Euros(), Count: c.Count}
		}),
	}
}

func resultJSON(res pipeline.Result) []expenseJSON {
	out := make([]expenseJSON, 0, len(res.Expenses))
	for _, r := range res.Expenses {
		out = append(out, toJSON(r.Expense, r.Duplicate))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP. Problems with the caller's
// audio are 400; failures of our upstreams or storage are 500.
func statusFor(err error) int {
	if errors.Is(err, services.ErrExpenseNotFound) {
		return http.StatusNotFound
	}
	switch core.KindOf(err) {
	case core.KindAuthRequired:
		return http.StatusUnauthorized
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	case core.KindRecordingTooShort, core.KindNoSpeechDetected, core.KindUnsupportedFormat, core.KindCouldNotUnderstand:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := core.KindOf(err)
	logger := vlog.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", vlog.FieldErrorKind, string(kind), vlog.FieldError, err)
	} else {
		logger.InfoContext(r.Context(), "Request rejected", vlog.FieldErrorKind, string(kind), vlog.FieldError, err)
	}

	msg := core.UserMessage(err)
	if status == http.StatusNotFound {
		msg = "Expense not found"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: string(kind)})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error: core.UserMessage(core.ErrRateLimited),
		Kind:  string(core.KindRateLimited),
	})
}
