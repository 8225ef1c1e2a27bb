package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"Examiner/core"
	"Examiner/lib/sl"
	"Examiner/metrics"
)

const defaultTimeout = 120 * time.Second

type completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Examiner asks the chat completion endpoint to grade a writing answer.
type Examiner struct {
	client  completer
	model   string
	timeout time.Duration
	backoff Backoff
	log     *slog.Logger
}

func NewExaminer(conf *core.Config, log *slog.Logger) *Examiner {
	config := openai.DefaultConfig(conf.OpenAI.ApiKey)
	if conf.OpenAI.BaseURL != "" {
		config.BaseURL = conf.OpenAI.BaseURL
	}

	backoff := Backoff{
		Attempts: conf.OpenAI.MaxAttempts,
		Min:      conf.OpenAI.MinBackoff,
		Max:      conf.OpenAI.MaxBackoff,
	}
	return newExaminer(openai.NewClientWithConfig(config), conf.OpenAI.Model, conf.OpenAI.Timeout, backoff, log)
}

func newExaminer(client completer, model string, timeout time.Duration, backoff Backoff, log *slog.Logger) *Examiner {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Examiner{
		client:  client,
		model:   model,
		timeout: timeout,
		backoff: backoff,
		log:     log.With(sl.Module("examiner"), slog.String("model", model)),
	}
}

// Assess returns the text of the first completion choice unmodified.
func (e *Examiner) Assess(ctx context.Context, topic, answer string) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: composeMessages(topic, answer),
	}

	start := time.Now()
	defer func() {
		metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	}()

	var content string
	err := e.backoff.Retry(ctx, func(ctx context.Context, attempt int) error {
		text, err := e.complete(ctx, request)
		if err != nil {
			metrics.CompletionAttempts.WithLabelValues("error").Inc()
			e.log.With(slog.Int("attempt", attempt)).Warn("completion attempt failed", sl.Err(err))
			return classify(err)
		}
		metrics.CompletionAttempts.WithLabelValues("ok").Inc()
		content = text
		return nil
	})
	if err != nil {
		return "", err
	}

	e.log.With(
		slog.Duration("elapsed", time.Since(start)),
		sl.Text(content),
	).Info("assessment received")
	return content, nil
}

func (e *Examiner) complete(ctx context.Context, request openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify marks client errors that a retry cannot fix. Rate limiting,
// server errors and network failures stay retryable.
func classify(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return Permanent(err)
	}
	return err
}
