package runtime

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stevenAIEngineer/babaru-regime/internal/api"
	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
	"github.com/stevenAIEngineer/babaru-regime/internal/prompt"
)

func (r *Runtime) registerRoutes(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	mux.HandleFunc("GET /{$}", r.handleRoot)
	mux.HandleFunc("POST /v1/chat", r.handleChat)
	mux.HandleFunc("POST /v1/speak", r.handleSpeak)
	mux.HandleFunc("GET /v1/users/{id}/memory", r.handleMemory)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Status:  "Babaru is watching you.",
		Version: r.version,
	})
}

func (r *Runtime) handleChat(w http.ResponseWriter, req *http.Request) {
	var chat api.ChatRequest
	if err := json.NewDecoder(req.Body).Decode(&chat); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if chat.UserID == "" || chat.Message == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "user_id and message are required"})
		return
	}

	reply, err := r.orch.HandleTurn(req.Context(), chat.UserID, chat.Message, prompt.ParseTrigger(chat.Context))
	if err != nil {
		r.logger.Error("turn failed", slog.String("user_id", chat.UserID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}

	resp := api.ChatResponse{Response: reply}
	if audio, ok := r.assembly.Render(req.Context(), reply); ok {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Runtime) handleSpeak(w http.ResponseWriter, req *http.Request) {
	var speak api.SpeakRequest
	if err := json.NewDecoder(req.Body).Decode(&speak); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}
	if speak.Text == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "text is required"})
		return
	}

	resp := api.SpeakResponse{}
	if audio, ok := r.assembly.Speak(req.Context(), speak.Text, speak.Voice); ok {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Runtime) handleMemory(w http.ResponseWriter, req *http.Request) {
	userID := req.PathValue("id")
	st, err := r.store.UserState(req.Context(), userID)
	if errors.Is(err, memstore.ErrUnknownUser) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "unknown user"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.MemoryFromState(st))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
