package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"parley/internal/db"
	"parley/internal/llm"
	"parley/internal/models"
)

// Completer is the single-call upstream dependency.
type Completer interface {
	Complete(ctx context.Context, prompts []llm.Prompt) (string, error)
}

type Handler struct {
	db     *db.Database
	llm    Completer
	logger *zap.Logger
}

func NewHandler(database *db.Database, completer Completer, logger *zap.Logger) *Handler {
	return &Handler{
		db:     database,
		llm:    completer,
		logger: logger,
	}
}

type createConversationRequest struct {
	Space int    `json:"space"`
	Title string `json:"title"`
}

type deleteConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type turnRequest struct {
	ConversationID string             `json:"conversationId"`
	Text           string             `json:"text"`
	Images         []string           `json:"images"`
	Files          []llm.IncomingFile `json:"files"`
}

type turnResponse struct {
	Output           string          `json:"output"`
	AssistantMessage *models.Message `json:"assistantMessage"`
}

// GetConversations serves both list-by-space and fetch-by-id, keyed on
// which query parameter is present.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		h.getConversation(w, r, id)
		return
	}

	space, ok := parseSpace(r.URL.Query().Get("space"))
	if !ok {
		writeError(w, http.StatusBadRequest, "space must be 0, 1 or 2")
		return
	}

	conversations, err := h.db.ListConversations(space)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err), zap.Int("space", space))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := h.db.GetConversation(id)
	if err != nil {
		h.logger.Error("failed to get conversation", zap.Error(err), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	messages, err := h.db.ListMessages(id)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.ValidSpace(req.Space) {
		writeError(w, http.StatusBadRequest, "space must be 0, 1 or 2")
		return
	}

	conv, err := h.db.CreateConversation(req.Space, req.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	h.logger.Info("conversation created", zap.String("id", conv.ID), zap.Int("space", conv.Space))
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conversationId")
	if id == "" && r.Body != nil {
		var req deleteConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			id = req.ConversationID
		}
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	deleted, err := h.db.DeleteConversation(id)
	if err != nil {
		h.logger.Error("failed to delete conversation", zap.Error(err), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	h.logger.Info("conversation deleted", zap.String("id", id))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleTurn runs one request/reply cycle: validate, load history, persist
// the user message, build the prompt list, call upstream once, persist the
// reply. The user message is written before the upstream call on purpose —
// a failed call must still leave the user's side of the turn on record.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Images) == 0 && len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "turn needs text, an image or a document")
		return
	}

	conv, err := h.db.GetConversation(req.ConversationID)
	if err != nil {
		h.logger.Error("failed to get conversation", zap.Error(err), zap.String("id", req.ConversationID))
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	history, err := h.db.ListMessages(conv.ID)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err), zap.String("id", conv.ID))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	if _, err := h.db.AddMessage(conv.ID, models.RoleUser, text, llm.CountTokens(text)); err != nil {
		h.logger.Error("failed to save user message", zap.Error(err), zap.String("id", conv.ID))
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	if text != "" {
		if err := h.db.UpdateTitleIfDefault(conv.ID, text); err != nil {
			h.logger.Error("failed to update title", zap.Error(err), zap.String("id", conv.ID))
			writeError(w, http.StatusInternalServerError, "failed to update title")
			return
		}
	}

	prompts, err := llm.BuildPrompts(history, llm.Turn{
		Text:   req.Text,
		Images: req.Images,
		Files:  req.Files,
	})
	if err != nil {
		// Builder rejections are caller errors; the user message above
		// stays persisted regardless.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	output, err := h.llm.Complete(r.Context(), prompts)
	if err != nil {
		h.logger.Error("upstream call failed", zap.Error(err), zap.String("id", conv.ID))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	assistantMsg, err := h.db.AddMessage(conv.ID, models.RoleAssistant, output, llm.CountTokens(output))
	if err != nil {
		h.logger.Error("failed to save assistant message", zap.Error(err), zap.String("id", conv.ID))
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		Output:           output,
		AssistantMessage: assistantMsg,
	})
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	space, ok := parseSpace(r.URL.Query().Get("space"))
	if !ok {
		writeError(w, http.StatusBadRequest, "space must be 0, 1 or 2")
		return
	}

	results, err := h.db.SearchMessages(space, query, 20)
	if err != nil {
		h.logger.Error("failed to search messages", zap.Error(err), zap.String("query", query))
		writeError(w, http.StatusInternalServerError, "failed to search messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func parseSpace(raw string) (int, bool) {
	space, err := strconv.Atoi(raw)
	if err != nil || !models.ValidSpace(space) {
		return 0, false
	}
	return space, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
