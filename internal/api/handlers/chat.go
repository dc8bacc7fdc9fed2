package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/5kyf4ll/molly-project/internal/orchestrator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// chatCookieName carries the chat session id, independent of the login
// session so conversations survive re-authentication
const chatCookieName = "chat_session"

// chatRequest is the body of POST /api/chat
type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse wraps the orchestrator result with the session surface the
// frontend polls
type chatResponse struct {
	Response      orchestrator.Result `json:"response"`
	SessionStatus string              `json:"session_status"`
	ActiveProject string              `json:"active_project"`
}

// ChatHandler creates the handler for POST /api/chat. The chat session id is
// minted lazily on first contact and pinned in its own cookie.
func ChatHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			errorResponse(w, "Mensaje no proporcionado", http.StatusBadRequest)
			return
		}

		chatID := chatSessionID(w, r, logger)

		result := orch.HandleQuery(r.Context(), req.Message, chatID)

		status, activeProject, _ := orch.SessionStatus()

		writeJSON(w, http.StatusOK, chatResponse{
			Response:      result,
			SessionStatus: status,
			ActiveProject: activeProject,
		})
	}
}

// chatSessionID resolves the stable chat id for this client, creating one on
// first reference.
func chatSessionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) string {
	if cookie, err := r.Cookie(chatCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	chatID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     chatCookieName,
		Value:    chatID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info("new chat session started", zap.String("chat_id", chatID))
	return chatID
}
