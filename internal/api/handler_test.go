package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"parley/internal/db"
	"parley/internal/llm"
	"parley/internal/models"
)

type fakeCompleter struct {
	reply   string
	err     error
	calls   int
	prompts []llm.Prompt
}

func (f *fakeCompleter) Complete(_ context.Context, prompts []llm.Prompt) (string, error) {
	f.calls++
	f.prompts = prompts
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestServer(t *testing.T, completer *fakeCompleter) (http.Handler, *db.Database) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	handler := NewHandler(database, completer, zap.NewNop())
	return NewRouter(handler, t.TempDir()), database
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func emptyDocxPayload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to build docx: %v", err)
	}
	w.Write([]byte(`<w:document><w:body></w:body></w:document>`))
	zw.Close()
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestTurnMissingConversationID(t *testing.T) {
	router, _ := newTestServer(t, &fakeCompleter{})
	rr := doJSON(t, router, http.MethodPost, "/turn", map[string]any{"text": "hi"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestTurnEmptyContent(t *testing.T) {
	completer := &fakeCompleter{}
	router, database := newTestServer(t, completer)

	conv, err := database.CreateConversation(models.SpaceGeneral, "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	rr := doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": conv.ID,
		"text":           "   ",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}

	messages, _ := database.ListMessages(conv.ID)
	if len(messages) != 0 {
		t.Errorf("empty turn must not be persisted, found %d messages", len(messages))
	}
	if completer.calls != 0 {
		t.Errorf("upstream must not be called, got %d calls", completer.calls)
	}
}

func TestTurnUnknownConversation(t *testing.T) {
	completer := &fakeCompleter{}
	router, database := newTestServer(t, completer)

	rr := doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": "no-such-conversation",
		"text":           "hello",
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if completer.calls != 0 {
		t.Errorf("upstream must not be called, got %d calls", completer.calls)
	}

	list, _ := database.ListConversations(models.SpaceGeneral)
	if len(list) != 0 {
		t.Errorf("expected no persistence side effects, found %d conversations", len(list))
	}
}

func TestTurnSuccess(t *testing.T) {
	completer := &fakeCompleter{reply: "Hello! How can I help?"}
	router, database := newTestServer(t, completer)

	conv, _ := database.CreateConversation(models.SpaceWork, "")
	rr := doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": conv.ID,
		"text":           "Hello there, how are you?",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["output"] != completer.reply {
		t.Errorf("expected output %q, got %v", completer.reply, body["output"])
	}
	if body["assistantMessage"] == nil {
		t.Error("expected the stored assistant message in the response")
	}
	if completer.calls != 1 {
		t.Errorf("expected exactly one upstream call, got %d", completer.calls)
	}

	messages, _ := database.ListMessages(conv.ID)
	if len(messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[1].Role != models.RoleAssistant {
		t.Errorf("unexpected roles: %q, %q", messages[0].Role, messages[1].Role)
	}
	if messages[1].Content != completer.reply {
		t.Errorf("assistant message content mismatch: %q", messages[1].Content)
	}

	got, _ := database.GetConversation(conv.ID)
	if got.Title != "Hello there, how are you?" {
		t.Errorf("expected title from first message, got %q", got.Title)
	}

	// The current turn must be the final prompt, tagged user.
	last := completer.prompts[len(completer.prompts)-1]
	if last.Role != models.RoleUser {
		t.Errorf("expected final prompt role user, got %q", last.Role)
	}
}

func TestTurnSecondMessageKeepsTitle(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	router, database := newTestServer(t, completer)

	conv, _ := database.CreateConversation(models.SpaceGeneral, "")
	doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": conv.ID, "text": "Hello there, how are you?",
	})
	doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": conv.ID, "text": "ignored",
	})

	got, _ := database.GetConversation(conv.ID)
	if got.Title != "Hello there, how are you?" {
		t.Errorf("title changed after second message: %q", got.Title)
	}

	// Second turn replays the first exchange as history.
	if len(completer.prompts) != 3 {
		t.Errorf("expected 2 history prompts + current, got %d", len(completer.prompts))
	}
}

func TestTurnUpstreamFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model unavailable")}
	router, database := newTestServer(t, completer)

	conv, _ := database.CreateConversation(models.SpaceGeneral, "")
	rr := doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": conv.ID,
		"text":           "hello",
	})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "model unavailable") {
		t.Errorf("expected upstream error passed through, got %v", body["error"])
	}

	// The user's side of the turn survives the failed call.
	messages, _ := database.ListMessages(conv.ID)
	if len(messages) != 1 || messages[0].Role != models.RoleUser {
		t.Errorf("expected only the persisted user message, got %d messages", len(messages))
	}
	if completer.calls != 1 {
		t.Errorf("expected exactly one attempt, got %d", completer.calls)
	}
}

func TestTurnEmptyDocxRejected(t *testing.T) {
	completer := &fakeCompleter{reply: "unused"}
	router, database := newTestServer(t, completer)

	conv, _ := database.CreateConversation(models.SpaceGeneral, "")
	rr := doJSON(t, router, http.MethodPost, "/turn", map[string]any{
		"conversationId": conv.ID,
		"text":           "summarize this",
		"files": []map[string]string{{
			"name": "empty.docx",
			"type": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"data": emptyDocxPayload(t),
		}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "empty.docx") {
		t.Errorf("expected document-specific error, got %v", body["error"])
	}
	if completer.calls != 0 {
		t.Errorf("upstream must not be called, got %d calls", completer.calls)
	}

	// Accepted inconsistency: the user message was persisted before the
	// builder rejected the turn.
	messages, _ := database.ListMessages(conv.ID)
	if len(messages) != 1 || messages[0].Content != "summarize this" {
		t.Errorf("expected the persisted user message, got %+v", messages)
	}
}

func TestListConversationsBadSpace(t *testing.T) {
	router, _ := newTestServer(t, &fakeCompleter{})
	for _, target := range []string{"/conversations?space=9", "/conversations?space=abc", "/conversations"} {
		rr := doJSON(t, router, http.MethodGet, target, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestListConversationsBySpace(t *testing.T) {
	router, database := newTestServer(t, &fakeCompleter{})
	database.CreateConversation(models.SpaceGeneral, "a")
	database.CreateConversation(models.SpaceWork, "b")

	rr := doJSON(t, router, http.MethodGet, "/conversations?space=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	conversations, _ := body["conversations"].([]any)
	if len(conversations) != 1 {
		t.Errorf("expected 1 conversation in space 1, got %d", len(conversations))
	}
}

func TestGetConversationWithMessages(t *testing.T) {
	router, database := newTestServer(t, &fakeCompleter{})
	conv, _ := database.CreateConversation(models.SpaceGeneral, "")
	database.AddMessage(conv.ID, models.RoleUser, "hi", 0)

	rr := doJSON(t, router, http.MethodGet, "/conversations?id="+conv.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["conversation"] == nil {
		t.Error("expected conversation in response")
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(messages))
	}
}

func TestGetConversationNotFound(t *testing.T) {
	router, _ := newTestServer(t, &fakeCompleter{})
	rr := doJSON(t, router, http.MethodGet, "/conversations?id=missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestCreateConversation(t *testing.T) {
	router, _ := newTestServer(t, &fakeCompleter{})

	rr := doJSON(t, router, http.MethodPost, "/conversations", map[string]any{"space": 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["title"] != models.DefaultTitle {
		t.Errorf("expected default title, got %v", body["title"])
	}

	rr = doJSON(t, router, http.MethodPost, "/conversations", map[string]any{"space": 7})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad space, got %d", rr.Code)
	}
}

func TestDeleteConversation(t *testing.T) {
	router, database := newTestServer(t, &fakeCompleter{})
	conv, _ := database.CreateConversation(models.SpaceGeneral, "")

	rr := doJSON(t, router, http.MethodDelete, "/conversations?conversationId="+conv.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["ok"] != true {
		t.Errorf("expected ok:true, got %v", body)
	}

	rr = doJSON(t, router, http.MethodDelete, "/conversations?conversationId="+conv.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rr.Code)
	}
}

func TestDeleteConversationBodyParam(t *testing.T) {
	router, database := newTestServer(t, &fakeCompleter{})
	conv, _ := database.CreateConversation(models.SpaceGeneral, "")

	rr := doJSON(t, router, http.MethodDelete, "/conversations", map[string]string{
		"conversationId": conv.ID,
	})
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	router, _ := newTestServer(t, &fakeCompleter{})
	rr := doJSON(t, router, http.MethodGet, "/search?space=0", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestSearchMessages(t *testing.T) {
	router, database := newTestServer(t, &fakeCompleter{})
	conv, _ := database.CreateConversation(models.SpaceGeneral, "")
	database.AddMessage(conv.ID, models.RoleUser, "where is the invoice template", 0)

	rr := doJSON(t, router, http.MethodGet, "/search?space=0&q=invoice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	results, _ := body["results"].([]any)
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t, &fakeCompleter{})
	rr := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
