package runtime

import (
	"context"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/actions"
	"github.com/roelfdiedericks/voicenav/internal/bus"
	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// StatusNotifier logs notices and publishes them on the session's status topic
type StatusNotifier struct {
	transport bus.Transport
	sessionID string
	now       func() time.Time
}

// NewStatusNotifier creates a notifier publishing to status/{sessionID}
func NewStatusNotifier(t bus.Transport, sessionID string) *StatusNotifier {
	return &StatusNotifier{transport: t, sessionID: sessionID, now: time.Now}
}

func (s *StatusNotifier) Notify(ctx context.Context, n actions.Notice) {
	actions.LogNotifier{}.Notify(ctx, n)

	status := protocol.Status{
		RequestID:    n.RequestID,
		FunctionName: string(n.Function),
		Message:      n.Message,
		Success:      n.Success,
		Timestamp:    protocol.Millis(s.now()),
	}
	// a cancelled command still reports its failure
	if err := s.transport.Publish(context.WithoutCancel(ctx), protocol.StatusTopic(s.sessionID), protocol.EventStatus, status); err != nil {
		L_warn("runtime: publish status failed", "request", n.RequestID, "error", err)
	}
}
