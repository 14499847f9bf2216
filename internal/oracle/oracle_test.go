package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"bridge/api/internal/logging"
)

type fakeModel struct {
	generateFn func(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error)
	messages   []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.generateFn != nil {
		return f.generateFn(ctx, messages, options...)
	}
	return &llms.ContentResponse{}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textResponse(text string) func(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return func(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
	}
}

func TestTrimLeadingFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: ` {"a":1} `, expected: `{"a":1}`},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", expected: `{"a":1}`},
		{name: "bare fence untouched", input: "```\n{}\n```", expected: "```\n{}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimLeadingFence(tt.input); got != tt.expected {
				t.Errorf("trimLeadingFence() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLLMAnalyzer(t *testing.T) {
	model := &fakeModel{generateFn: textResponse("```json\n{\"Type of match found\":\"No Match\"}\n```")}
	analyzer := NewLLMAnalyzer(model)

	text, err := analyzer.Analyze(context.Background(), Request{DraftText: " draft ", ReferenceText: "reference"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != `{"Type of match found":"No Match"}` {
		t.Errorf("unexpected text %q", text)
	}
	if len(model.messages) != 2 || model.messages[0].Role != llms.ChatMessageTypeSystem {
		t.Fatalf("expected system + human messages, got %+v", model.messages)
	}
	human, ok := model.messages[1].Parts[0].(llms.TextContent)
	if !ok || !strings.Contains(human.Text, "draft") || !strings.Contains(human.Text, "reference") {
		t.Errorf("prompt should carry both texts, got %+v", model.messages[1].Parts)
	}
}

func TestLLMAnalyzerEmpty(t *testing.T) {
	analyzer := NewLLMAnalyzer(&fakeModel{})
	if _, err := analyzer.Analyze(context.Background(), Request{DraftText: "a", ReferenceText: "b"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestNewModelUnsupported(t *testing.T) {
	if _, err := NewModel(ModelOptions{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestHTTPClient(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-match" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matchedParagraph":"{\"Note\":\"x\"}"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", 5*time.Second)
	text, err := client.Analyze(context.Background(), Request{DraftText: "d", ReferenceText: "r"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if text != `{"Note":"x"}` {
		t.Errorf("unexpected text %q", text)
	}
	if got.DraftText != "d" || got.ReferenceText != "r" {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestHTTPClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to process LLM request."}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, time.Second).Analyze(context.Background(), Request{DraftText: "d", ReferenceText: "r"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected 500 error, got %v", err)
	}
}

func TestHandler(t *testing.T) {
	handler := NewHandler(Func(func(_ context.Context, req Request) (string, error) {
		if req.DraftText == "boom" {
			return "", errors.New("model down")
		}
		return `{"Type of match found":"No Match"}`, nil
	}), logging.Discard())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{name: "ok", method: http.MethodPost, path: "/analyze-match", body: `{"draftText":"a","referenceText":"b"}`, status: http.StatusOK, want: "matchedParagraph"},
		{name: "missing field", method: http.MethodPost, path: "/analyze-match", body: `{"draftText":"a"}`, status: http.StatusBadRequest, want: "required"},
		{name: "bad json", method: http.MethodPost, path: "/analyze-match", body: `{`, status: http.StatusBadRequest, want: "invalid JSON"},
		{name: "model failure", method: http.MethodPost, path: "/analyze-match", body: `{"draftText":"boom","referenceText":"b"}`, status: http.StatusInternalServerError, want: "Failed to process"},
		{name: "wrong method", method: http.MethodGet, path: "/analyze-match", status: http.StatusMethodNotAllowed},
		{name: "unknown path", method: http.MethodPost, path: "/other", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rr.Code)
			}
			if tt.want != "" && !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("expected body to contain %q, got %s", tt.want, rr.Body.String())
			}
		})
	}
}
