package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

const DefaultHeartbeat = 30 * time.Second

// Runner drives a registered session from instruction to recorded submission.
type Runner interface {
	Run(ctx context.Context, sessionID, instruction string) error
}

// Tracker is the part of the tracking engine the handler needs.
type Tracker interface {
	RegisterSession(sessionID string) (*tracking.Session, error)
	CloseSession(sessionID string)
	ActiveSessions() int
}

// Handler serves job submissions as progress streams.
type Handler struct {
	tracker   Tracker
	runner    Runner
	heartbeat time.Duration
	now       func() time.Time
}

func NewHandler(tracker Tracker, runner Runner, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{
		tracker:   tracker,
		runner:    runner,
		heartbeat: heartbeat,
		now:       time.Now,
	}
}

// CreateJob opens a tracking session for the instruction, starts the
// submission in the background and streams the session's progress until it
// ends or the client goes away.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	instruction, ok := r.Context().Value(instructionKey{}).(string)
	if !ok {
		var code, msg string
		if instruction, code, msg = decodeInstruction(r); code != "" {
			writeError(w, http.StatusBadRequest, code, msg)
			return
		}
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "")
		return
	}

	session, err := h.tracker.RegisterSession("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}

	requestID, _ := r.Context().Value(middlewares.ContextKeyRequestID).(string)
	slog.InfoContext(r.Context(), "job request accepted", "request_id", requestID, "session_id", session.ID)

	sse.open()
	if err := sse.event(tracking.NewConnected(session.ID)); err != nil {
		h.release(session)
		return
	}

	// Detach from the request so a disconnect cannot cancel a submission
	// that is already on its way to the ledger.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		_ = h.runner.Run(runCtx, session.ID, instruction)
	}()

	h.stream(r.Context(), sse, session)
}

type instructionKey struct{}

// requireInstruction answers 400 for a body without a usable instruction and
// passes the parsed instruction on through the context. It runs ahead of the
// idempotency guard so a rejected body does not use up its key.
func requireInstruction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		instruction, code, msg := decodeInstruction(r)
		if code != "" {
			writeError(w, http.StatusBadRequest, code, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), instructionKey{}, instruction)))
	})
}

func decodeInstruction(r *http.Request) (instruction, code, msg string) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "invalid_json", err.Error()
	}
	if err := json.Unmarshal(req.Instruction, &instruction); err != nil || strings.TrimSpace(instruction) == "" {
		return "", "invalid_request", "instruction is required and must be a non-empty string"
	}
	return instruction, "", ""
}

func (h *Handler) stream(ctx context.Context, sse *sseWriter, session *tracking.Session) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "client disconnected", "session_id", session.ID)
			h.release(session)
			return
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if err := sse.event(ev); err != nil {
				slog.WarnContext(ctx, "stream write failed", "session_id", session.ID, "error", err)
				h.release(session)
				return
			}
		case <-ticker.C:
			if err := sse.heartbeat(); err != nil {
				h.release(session)
				return
			}
		}
	}
}

func (h *Handler) release(session *tracking.Session) {
	h.tracker.CloseSession(session.ID)
	session.Detach()
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Timestamp:      h.now().UTC().Format(time.RFC3339),
		ActiveSessions: h.tracker.ActiveSessions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
