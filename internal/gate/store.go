package gate

import (
	"context"

	"gatepass/pkg/domain"
)

// LogStore is the append-only scan journal.
type LogStore interface {
	Append(ctx context.Context, log Log) error
	// Latest returns the newest log for the request, or sentinel.ErrNotFound
	// when no scan has been recorded.
	Latest(ctx context.Context, requestID domain.PassID) (Log, error)
	ListByRequest(ctx context.Context, requestID domain.PassID) ([]Log, error)
}
