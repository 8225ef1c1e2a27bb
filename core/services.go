package core

import "context"

// Assessor grades a writing answer against its topic.
type Assessor interface {
	Assess(ctx context.Context, topic, answer string) (string, error)
}

// Limiter throttles assessments per user. Implementations fail open.
type Limiter interface {
	IsDenied(ctx context.Context, userId int64) bool
	MarkDenied(ctx context.Context, userId int64)
}
