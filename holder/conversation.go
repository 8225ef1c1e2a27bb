package holder

import (
	"context"
	"fmt"
	"log/slog"

	"Examiner/lib/sl"
	"Examiner/storage"
)

// Session is an alias for storage.Session
type Session = storage.Session

const (
	CommandStart  = "start"
	CommandCancel = "cancel"

	// AssessTrigger is the exact text that asks for an assessment.
	AssessTrigger = "Assess"
)

// Input is one inbound chat message. Command holds the command name without
// the slash when the message is a bot command.
type Input struct {
	Text    string
	Command string
}

type OutcomeKind int

const (
	OutcomeNoSession OutcomeKind = iota
	OutcomeStarted
	OutcomeCancelled
	OutcomeChoosing
	OutcomeUnknownChoice
	OutcomeRecorded
	OutcomeIgnored
	OutcomeMissingFields
	OutcomeAssess
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoSession:
		return "no_session"
	case OutcomeStarted:
		return "started"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeChoosing:
		return "choosing"
	case OutcomeUnknownChoice:
		return "unknown_choice"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeMissingFields:
		return "missing_fields"
	case OutcomeAssess:
		return "assess"
	}
	return "unknown"
}

// Outcome describes the transition taken. Session is a snapshot after the
// transition, nil when no session exists.
type Outcome struct {
	Kind    OutcomeKind
	Field   storage.Field
	Session *Session
}

// Conversation is the per-user input collection state machine. It does not
// lock: callers serialize steps of the same user.
type Conversation struct {
	storage storage.SessionStorage
	log     *slog.Logger
}

func NewConversation(store storage.SessionStorage, log *slog.Logger) *Conversation {
	return &Conversation{
		storage: store,
		log:     log.With(sl.Module("conversation")),
	}
}

func (c *Conversation) Step(ctx context.Context, userId int64, in Input) (Outcome, error) {
	switch in.Command {
	case CommandStart:
		return c.start(ctx, userId)
	case CommandCancel:
		if err := c.Clear(ctx, userId); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeCancelled}, nil
	}

	session, err := c.storage.Get(ctx, userId)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return Outcome{Kind: OutcomeNoSession}, nil
	}

	if in.Command == "" && in.Text == AssessTrigger {
		return c.assess(ctx, session)
	}

	switch session.Mode {
	case storage.ModeChoosing:
		return c.choose(ctx, session, in)
	case storage.ModeTypingReply:
		if session.Pending == "" {
			return c.choose(ctx, session, in)
		}
		return c.record(ctx, session, in)
	}
	return Outcome{Kind: OutcomeIgnored, Session: session}, nil
}

// Clear ends the user's conversation.
func (c *Conversation) Clear(ctx context.Context, userId int64) error {
	if err := c.storage.Delete(ctx, userId); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func (c *Conversation) start(ctx context.Context, userId int64) (Outcome, error) {
	session := storage.NewSession(userId)
	if err := c.save(ctx, session); err != nil {
		return Outcome{}, err
	}
	c.log.With(sl.User(userId)).Info("conversation started")
	return Outcome{Kind: OutcomeStarted, Session: session}, nil
}

func (c *Conversation) choose(ctx context.Context, session *Session, in Input) (Outcome, error) {
	field, ok := storage.ParseField(in.Text)
	if in.Command != "" || !ok {
		return Outcome{Kind: OutcomeUnknownChoice, Session: session}, nil
	}

	session.Mode = storage.ModeTypingReply
	session.Pending = field
	if err := c.save(ctx, session); err != nil {
		return Outcome{}, err
	}
	c.log.With(sl.User(session.UserId), slog.String("field", string(field))).Debug("field chosen")
	return Outcome{Kind: OutcomeChoosing, Field: field, Session: session}, nil
}

func (c *Conversation) record(ctx context.Context, session *Session, in Input) (Outcome, error) {
	if in.Command != "" || in.Text == "" {
		return Outcome{Kind: OutcomeIgnored, Session: session}, nil
	}

	field := session.Pending
	session.Fields[field] = in.Text
	session.Pending = ""
	session.Mode = storage.ModeChoosing
	if err := c.save(ctx, session); err != nil {
		return Outcome{}, err
	}
	c.log.With(sl.User(session.UserId), slog.String("field", string(field)), sl.Text(in.Text)).Info("field recorded")
	return Outcome{Kind: OutcomeRecorded, Field: field, Session: session}, nil
}

// assess leaves an incomplete session untouched so the user can fill the
// missing field and try again.
func (c *Conversation) assess(ctx context.Context, session *Session) (Outcome, error) {
	if !session.Complete() {
		return Outcome{Kind: OutcomeMissingFields, Session: session}, nil
	}

	if session.Pending != "" {
		session.Pending = ""
		session.Mode = storage.ModeChoosing
		if err := c.save(ctx, session); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Kind: OutcomeAssess, Session: session}, nil
}

func (c *Conversation) save(ctx context.Context, session *Session) error {
	if err := c.storage.Save(ctx, session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}
