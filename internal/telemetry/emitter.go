package telemetry

import (
	"context"

	"github.com/ChrisTorres404/authcakes-sub002/internal/telemetry/domain"
)

// EventEmitter emits auth events (e.g. to OTel Logs). Best-effort; callers
// log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
