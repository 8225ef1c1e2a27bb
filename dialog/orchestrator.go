package dialog

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"Examiner/ai"
	"Examiner/core"
	"Examiner/holder"
	"Examiner/lib/sl"
	"Examiner/metrics"
	"Examiner/storage"
)

// Orchestrator turns inbound messages into replies. Messages of one user
// are handled one at a time, different users run in parallel.
type Orchestrator struct {
	conversation *holder.Conversation
	limiter      core.Limiter
	assessor     core.Assessor
	log          *slog.Logger

	mutex sync.Mutex
	locks map[int64]*userLock
}

// userLock is dropped from the map once nobody holds or waits for it.
type userLock struct {
	sync.Mutex
	refs int
}

func NewOrchestrator(conversation *holder.Conversation, limiter core.Limiter, assessor core.Assessor, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		conversation: conversation,
		limiter:      limiter,
		assessor:     assessor,
		log:          log.With(sl.Module("orchestrator")),
		locks:        make(map[int64]*userLock),
	}
}

// IsAssessTrigger reports whether the message may start a slow assessment.
func IsAssessTrigger(in holder.Input) bool {
	return in.Command == "" && in.Text == holder.AssessTrigger
}

func (o *Orchestrator) lockUser(userId int64) func() {
	o.mutex.Lock()
	lock, ok := o.locks[userId]
	if !ok {
		lock = &userLock{}
		o.locks[userId] = lock
	}
	lock.refs++
	o.mutex.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		o.mutex.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, userId)
		}
		o.mutex.Unlock()
	}
}

func (o *Orchestrator) Handle(ctx context.Context, userId int64, in holder.Input) []Reply {
	unlock := o.lockUser(userId)
	defer unlock()

	log := o.log.With(sl.User(userId))

	out, err := o.conversation.Step(ctx, userId, in)
	if err != nil {
		log.Error("conversation step", sl.Err(err))
		return []Reply{{Text: failureText, Keyboard: KeyboardRemove}}
	}
	log.With(slog.String("outcome", out.Kind.String())).Debug("conversation step")

	switch out.Kind {
	case holder.OutcomeStarted:
		return []Reply{{Text: greetingText, Keyboard: KeyboardChoices}}
	case holder.OutcomeCancelled:
		return []Reply{{Text: cancelledText, Keyboard: KeyboardRemove}}
	case holder.OutcomeNoSession:
		return []Reply{{Text: noSessionText, Keyboard: KeyboardRemove}}
	case holder.OutcomeChoosing:
		return []Reply{{Text: enterFieldText(out.Field), Keyboard: KeyboardKeep}}
	case holder.OutcomeUnknownChoice:
		return []Reply{{Text: unknownChoiceText, Keyboard: KeyboardChoices}}
	case holder.OutcomeRecorded:
		return []Reply{{Text: recordedText(out.Session), Keyboard: KeyboardChoices}}
	case holder.OutcomeMissingFields:
		metrics.Assessments.WithLabelValues(metrics.ResultIncomplete).Inc()
		return []Reply{{Text: missingFieldsText, Keyboard: KeyboardKeep}}
	case holder.OutcomeAssess:
		return o.assess(ctx, log, out.Session)
	}
	return nil
}

// assess runs with a complete session and always ends it.
func (o *Orchestrator) assess(ctx context.Context, log *slog.Logger, session *holder.Session) []Reply {
	userId := session.UserId
	log = log.With(slog.String("assessment", uuid.NewString()))

	defer func() {
		if err := o.conversation.Clear(context.WithoutCancel(ctx), userId); err != nil {
			log.Error("ending conversation", sl.Err(err))
		}
	}()

	if o.limiter.IsDenied(ctx, userId) {
		metrics.Assessments.WithLabelValues(metrics.ResultDenied).Inc()
		log.Info("user is denied")
		return []Reply{{Text: deniedText, Keyboard: KeyboardRemove}}
	}

	log.Info("requesting assessment")
	text, err := o.assessor.Assess(ctx, session.Fields[storage.FieldTopic], session.Fields[storage.FieldAnswer])
	if err != nil {
		metrics.Assessments.WithLabelValues(metrics.ResultFailed).Inc()
		var exhausted *ai.ExhaustedRetriesError
		if errors.As(err, &exhausted) {
			log.With(slog.Int("attempts", exhausted.Attempts)).Error("assessment retries exhausted", sl.Err(err))
		} else {
			log.Error("assessment failed", sl.Err(err))
		}
		return []Reply{{Text: failureText, Keyboard: KeyboardRemove}}
	}

	metrics.Assessments.WithLabelValues(metrics.ResultSuccess).Inc()
	o.limiter.MarkDenied(ctx, userId)
	log.With(sl.Text(text)).Info("assessment sent")
	return []Reply{{Text: text, Keyboard: KeyboardRemove}}
}
