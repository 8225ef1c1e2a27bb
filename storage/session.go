package storage

import (
	"context"
	"time"
)

// Field names double as the keyboard button texts.
type Field string

const (
	FieldTopic  Field = "Topic"
	FieldAnswer Field = "Answer"
)

// Fields lists the collectable fields in display order.
var Fields = []Field{FieldTopic, FieldAnswer}

func ParseField(text string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == text {
			return f, true
		}
	}
	return "", false
}

type Mode int

const (
	ModeChoosing Mode = iota
	ModeTypingReply
)

func (m Mode) String() string {
	switch m {
	case ModeChoosing:
		return "choosing"
	case ModeTypingReply:
		return "typing_reply"
	}
	return "unknown"
}

type Session struct {
	UserId    int64            `bson:"user_id"`
	Mode      Mode             `bson:"mode"`
	Fields    map[Field]string `bson:"fields"`
	Pending   Field            `bson:"pending,omitempty"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

func NewSession(userId int64) *Session {
	return &Session{
		UserId:    userId,
		Mode:      ModeChoosing,
		Fields:    make(map[Field]string),
		UpdatedAt: time.Now(),
	}
}

// Complete reports whether every field holds non-empty text.
func (s *Session) Complete() bool {
	for _, f := range Fields {
		if s.Fields[f] == "" {
			return false
		}
	}
	return true
}

func (s *Session) Clone() *Session {
	c := *s
	c.Fields = make(map[Field]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return &c
}

// SessionStorage keeps one conversation per user. Get returns nil, nil
// when the user has no session.
type SessionStorage interface {
	Get(ctx context.Context, userId int64) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, userId int64) error
	Close() error
}
