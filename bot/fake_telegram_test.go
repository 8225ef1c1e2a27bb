package bot

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/require"
)

// fakeTelegram answers Bot API calls in-process. The first getUpdates
// returns the whole batch at once, later calls return nothing.
type fakeTelegram struct {
	mu     sync.Mutex
	batch  []map[string]any
	served bool
	sent   []url.Values
}

func textUpdate(updateId int, userId int64, text string) map[string]any {
	return map[string]any{
		"update_id": updateId,
		"message": map[string]any{
			"message_id": updateId,
			"date":       0,
			"text":       text,
			"from":       map[string]any{"id": userId, "is_bot": false, "first_name": "user"},
			"chat":       map[string]any{"id": userId, "type": "private"},
		},
	}
}

func (f *fakeTelegram) RoundTrip(req *http.Request) (*http.Response, error) {
	var result any
	switch path.Base(req.URL.Path) {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "Examiner", "username": "examiner_bot"}
	case "getUpdates":
		f.mu.Lock()
		if !f.served {
			f.served = true
			result = f.batch
		}
		f.mu.Unlock()
		if result == nil {
			time.Sleep(10 * time.Millisecond)
			result = []any{}
		}
	default:
		body, _ := io.ReadAll(req.Body)
		values, _ := url.ParseQuery(string(body))
		f.mu.Lock()
		f.sent = append(f.sent, values)
		f.mu.Unlock()
		result = map[string]any{
			"message_id": 1,
			"date":       0,
			"chat":       map[string]any{"id": 1, "type": "private"},
		}
	}

	payload, _ := json.Marshal(map[string]any{"ok": true, "result": result})
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(payload)),
		Request:    req,
	}, nil
}

func (f *fakeTelegram) Sent() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.sent...)
}

func newFakeBot(t *testing.T, fake *fakeTelegram, handler Handler) *TgBot {
	t.Helper()
	api, err := tgbotapi.NewBotAPIWithClient("123:test", &http.Client{Transport: fake})
	require.NoError(t, err)

	b := newTgBot(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.SetHandler(handler)
	return b
}

// runBot starts polling and returns a channel with the result of Start.
func runBot(b *TgBot) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Start() }()
	return done
}
