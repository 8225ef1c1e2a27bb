package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"Examiner/core"
	"Examiner/dialog"
	"Examiner/holder"
	"Examiner/lib/sl"
	"Examiner/storage"
)

const (
	typingInterval = 5 * time.Second
	defaultGrace   = 10 * time.Second

	// maxMessageLength is the Telegram limit for one text message.
	maxMessageLength = 4096
)

// Handler produces the replies for one inbound message.
type Handler interface {
	Handle(ctx context.Context, userId int64, in holder.Input) []dialog.Reply
}

type TgBot struct {
	api     *tgbotapi.BotAPI
	handler Handler
	log     *slog.Logger

	// grace is how long Stop lets running handlers finish before
	// cancelling their context.
	grace time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup

	mutex   sync.Mutex
	closing bool
	queues  map[int64][]job // pending messages of users with a running worker
}

type job struct {
	chatId int64
	in     holder.Input
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}

	tgBot := newTgBot(api, log)
	tgBot.log.With(slog.String("username", api.Self.UserName)).Info("authorized on telegram")

	return tgBot, nil
}

func newTgBot(api *tgbotapi.BotAPI, log *slog.Logger) *TgBot {
	ctx, cancel := context.WithCancel(context.Background())
	return &TgBot{
		api:     api,
		log:     log.With(sl.Module("tgbot")),
		grace:   defaultGrace,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		queues:  make(map[int64][]job),
	}
}

// SetHandler set conversation handler
func (t *TgBot) SetHandler(handler Handler) {
	t.handler = handler
}

// Start polls for updates until Stop is called.
func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("getting updates: %w", err)
	}

	for {
		var update tgbotapi.Update
		select {
		case <-t.stopped:
			return nil
		case update = <-updates:
		}

		incoming := update.Message
		if incoming == nil || incoming.From == nil || incoming.Chat == nil || incoming.Text == "" {
			continue
		}

		userId := int64(incoming.From.ID)
		t.log.With(sl.User(userId), sl.Text(incoming.Text)).Debug("incoming message")

		t.enqueue(userId, job{chatId: incoming.Chat.ID, in: inputFrom(incoming)})
	}
}

// enqueue hands the message to the user's worker, starting one when the
// user has none. Messages of one user are answered in arrival order.
func (t *TgBot) enqueue(userId int64, j job) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closing {
		return
	}
	if pending, ok := t.queues[userId]; ok {
		t.queues[userId] = append(pending, j)
		return
	}

	t.queues[userId] = nil
	t.wg.Add(1)
	go t.work(userId, j)
}

// work answers queued messages of one user and exits once the queue is empty.
func (t *TgBot) work(userId int64, j job) {
	defer t.wg.Done()

	for {
		t.respond(j.chatId, userId, j.in)

		t.mutex.Lock()
		pending := t.queues[userId]
		if len(pending) == 0 {
			delete(t.queues, userId)
			t.mutex.Unlock()
			return
		}
		j = pending[0]
		t.queues[userId] = pending[1:]
		t.mutex.Unlock()
	}
}

// Stop stops polling, gives running handlers the grace period to finish
// and then cancels them.
func (t *TgBot) Stop() {
	t.mutex.Lock()
	if t.closing {
		t.mutex.Unlock()
		return
	}
	t.closing = true
	t.mutex.Unlock()

	t.api.StopReceivingUpdates()
	close(t.stopped)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(t.grace):
		t.log.Warn("cancelling in-flight messages")
		t.cancel()
		<-done
	}
	t.cancel()
}

func (t *TgBot) respond(chatId, userId int64, in holder.Input) {
	if dialog.IsAssessTrigger(in) {
		stopTyping := t.keepTyping(chatId)
		defer stopTyping()
	}

	for _, reply := range t.handler.Handle(t.ctx, userId, in) {
		for _, msg := range composeMessages(chatId, reply) {
			t.send(msg)
		}
	}
}

// keepTyping sends the typing action every 5 seconds until stopped
func (t *TgBot) keepTyping(chatId int64) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		t.send(tgbotapi.NewChatAction(chatId, tgbotapi.ChatTyping))
		for {
			select {
			case <-ticker.C:
				t.send(tgbotapi.NewChatAction(chatId, tgbotapi.ChatTyping))
			case <-stop:
				return
			case <-t.ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func (t *TgBot) send(c tgbotapi.Chattable) {
	if _, err := t.api.Send(c); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

func inputFrom(message *tgbotapi.Message) holder.Input {
	in := holder.Input{Text: message.Text}
	if message.IsCommand() {
		in.Command = message.Command()
	}
	return in
}

func choicesKeyboard() tgbotapi.ReplyKeyboardMarkup {
	row := make([]tgbotapi.KeyboardButton, 0, len(storage.Fields))
	for _, f := range storage.Fields {
		row = append(row, tgbotapi.NewKeyboardButton(string(f)))
	}
	keyboard := tgbotapi.NewReplyKeyboard(
		row,
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(holder.AssessTrigger)),
	)
	keyboard.OneTimeKeyboard = true
	return keyboard
}

// composeMessages splits text over the Telegram limit into several
// messages. The keyboard goes with the last one.
func composeMessages(chatId int64, reply dialog.Reply) []tgbotapi.MessageConfig {
	parts := splitText(reply.Text, maxMessageLength)
	messages := make([]tgbotapi.MessageConfig, 0, len(parts))
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatId, part)
		if i == len(parts)-1 {
			switch reply.Keyboard {
			case dialog.KeyboardChoices:
				msg.ReplyMarkup = choicesKeyboard()
			case dialog.KeyboardRemove:
				msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
			}
		}
		messages = append(messages, msg)
	}
	return messages
}

// splitText cuts text into chunks of at most limit runes, preferring to cut
// after a line break in the second half of a chunk.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
