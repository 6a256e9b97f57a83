package triage

import "context"

// Store is the run log. It keeps one RunRecord per analysis.
type Store interface {
	Get(ctx context.Context, id string) (*RunRecord, bool, error)
	Put(ctx context.Context, rec *RunRecord) error
	Recent(ctx context.Context, limit int) ([]*RunRecord, error)
}

// Notifier is told about analyses whose urgency is notable.
type Notifier interface {
	Notify(ctx context.Context, rec *RunRecord) error
}
