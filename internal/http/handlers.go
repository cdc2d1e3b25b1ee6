package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"voicespese/internal/auth"
	"voicespese/internal/core"
	vlog "voicespese/internal/log"
	"voicespese/internal/pipeline"
)

// requireUser resolves the bearer token and stores the user id in the
// request context. Nothing downstream runs for an unauthenticated caller.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeError(w, r, core.ErrAuthRequired)
			return
		}
		userID, err := s.deps.Auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := auth.WithUser(r.Context(), userID)
		ctx = vlog.IntoContext(ctx, vlog.FromContext(ctx).With(vlog.FieldUserID, userID))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) handleVoiceToText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserFrom(ctx)

	// base64 inflates by 4/3; leave room for the JSON envelope.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.deps.MaxAudioBytes)/3*4+64<<10)
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Audio payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	payload, err := decodeAudio(req, s.deps.MinAudioBytes, s.deps.MaxAudioBytes)
	if errors.Is(err, errAudioTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Audio payload too large"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Processor.Process(ctx, userID, payload, func(stage pipeline.Stage) {
		vlog.FromContext(ctx).DebugContext(ctx, "Pipeline stage", vlog.FieldStage, string(stage))
	})
	if err != nil && res.Saved+res.Skipped+res.Failed > 0 {
		vlog.FromContext(ctx).ErrorContext(ctx, "Voice request partially saved",
			vlog.FieldErrorKind, string(core.KindOf(err)), vlog.FieldError, err)
		writeJSON(w, statusFor(err), voiceResponse{
			Expense:       resultJSON(res),
			Transcription: res.Transcription,
			Error:         core.UserMessage(err),
			Kind:          string(core.KindOf(err)),
			Saved:         res.Saved,
			Skipped:       res.Skipped,
			Failed:        res.Failed,
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, voiceResponse{
		Success:       true,
		Expense:       resultJSON(res),
		Transcription: res.Transcription,
		Saved:         res.Saved,
		Skipped:       res.Skipped,
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	archived, _ := strconv.ParseBool(strings.TrimSpace(q.Get("archived")))
	limit, _ := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.deps.Expenses.List(r.Context(), auth.UserFrom(r.Context()), archived, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]expenseJSON, 0, len(rows))
	for _, e := range rows {
		out = append(out, toJSON(e, false))
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Expenses: out, Summary: toSummaryJSON(core.Summarize(rows))})
}

func (s *Server) handleArchive(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid expense id"})
			return
		}
		row, err := s.deps.Expenses.Archive(r.Context(), auth.UserFrom(r.Context()), id, archived)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "expense": toJSON(row, false)})
	}
}
