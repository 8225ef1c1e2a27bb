package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"Examiner/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCompleter struct {
	failures int
	err      error
	calls    int
	requests []openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	s.requests = append(s.requests, request)
	if s.err != nil && (s.failures < 0 || s.calls <= s.failures) {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Overall band: 7.0"}},
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "ignored"}},
		},
	}, nil
}

func newStubExaminer(client completer) *Examiner {
	var waits []time.Duration
	return newExaminer(client, "", 0, instantBackoff(&waits), testLogger())
}

func TestExaminer_RequestShape(t *testing.T) {
	stub := &stubCompleter{}
	e := newStubExaminer(stub)

	text, err := e.Assess(context.Background(), "Climate change", "Climate change is...")
	require.NoError(t, err)
	require.Equal(t, "Overall band: 7.0", text)

	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	require.Equal(t, "gpt-3.5-turbo", req.Model)
	require.Len(t, req.Messages, 3)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "IELTS writing examiner")
	require.Contains(t, req.Messages[0].Content, "multiples of 0.5")
	require.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	require.Equal(t, "My writing topic is Climate change", req.Messages[1].Content)
	require.Equal(t, openai.ChatMessageRoleUser, req.Messages[2].Role)
	require.Equal(t, "My writing answer is Climate change is...", req.Messages[2].Content)
}

func TestExaminer_RetriesTransientFailures(t *testing.T) {
	stub := &stubCompleter{failures: 5, err: errors.New("connection reset")}
	e := newStubExaminer(stub)

	text, err := e.Assess(context.Background(), "t", "a")
	require.NoError(t, err)
	require.Equal(t, "Overall band: 7.0", text)
	require.Equal(t, 6, stub.calls)
}

func TestExaminer_ExhaustedRetries(t *testing.T) {
	stub := &stubCompleter{failures: -1, err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	e := newStubExaminer(stub)

	_, err := e.Assess(context.Background(), "t", "a")
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 6, exhausted.Attempts)
	require.Equal(t, 6, stub.calls)
}

func TestExaminer_PermanentFailure(t *testing.T) {
	stub := &stubCompleter{failures: -1, err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}
	e := newStubExaminer(stub)

	_, err := e.Assess(context.Background(), "t", "a")
	require.Error(t, err)
	require.Equal(t, 1, stub.calls)

	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	var exhausted *ExhaustedRetriesError
	require.False(t, errors.As(err, &exhausted))
}

type emptyCompleter struct{ calls int }

func (e *emptyCompleter) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	e.calls++
	return openai.ChatCompletionResponse{}, nil
}

func TestExaminer_EmptyChoicesRetried(t *testing.T) {
	stub := &emptyCompleter{}
	e := newStubExaminer(stub)

	_, err := e.Assess(context.Background(), "t", "a")
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Contains(t, err.Error(), "empty choices")
	require.Equal(t, 6, stub.calls)
}

func TestClassify(t *testing.T) {
	var perm *permanentError

	for _, status := range []int{400, 401, 403, 404} {
		err := classify(&openai.APIError{HTTPStatusCode: status})
		require.ErrorAs(t, err, &perm, "status=%d", status)

		err = classify(&openai.RequestError{HTTPStatusCode: status, Err: errors.New("x")})
		require.ErrorAs(t, err, &perm, "status=%d", status)
	}

	for _, status := range []int{429, 500, 502, 503} {
		err := classify(&openai.APIError{HTTPStatusCode: status})
		require.False(t, errors.As(err, &perm), "status=%d", status)
	}

	require.False(t, errors.As(classify(errors.New("dial tcp: refused")), &perm))
}

// ---------------------------------------------------------------------------
// against a fake OpenAI server
// ---------------------------------------------------------------------------

func chatHandler(t *testing.T, failFirst int, hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)

		w.Header().Set("Content-Type", "application/json")
		if int(n) <= failFirst {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Task Response: 6.5\nOverall: 6.5"},"finish_reason":"stop"}]}`)
	}
}

func newServerExaminer(t *testing.T, srv *httptest.Server) *Examiner {
	t.Helper()
	conf := &core.Config{}
	conf.OpenAI.ApiKey = "sk-test"
	conf.OpenAI.BaseURL = srv.URL + "/v1"
	conf.OpenAI.Model = "gpt-4o-mini"
	conf.OpenAI.Timeout = 2 * time.Second
	conf.OpenAI.MaxAttempts = 3
	conf.OpenAI.MinBackoff = time.Millisecond
	conf.OpenAI.MaxBackoff = 5 * time.Millisecond

	return NewExaminer(conf, testLogger())
}

func TestExaminer_HTTPRateLimitedThenOK(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(chatHandler(t, 2, &hits))
	defer srv.Close()

	text, err := newServerExaminer(t, srv).Assess(context.Background(), "Topic", "Answer")
	require.NoError(t, err)
	require.Equal(t, "Task Response: 6.5\nOverall: 6.5", text)
	require.Equal(t, int32(3), hits.Load())
}

func TestExaminer_HTTPAlwaysRateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(chatHandler(t, 100, &hits))
	defer srv.Close()

	_, err := newServerExaminer(t, srv).Assess(context.Background(), "Topic", "Answer")
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.Equal(t, int32(3), hits.Load())
}
