package actions

import (
	"context"

	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Notice is the user-facing feedback for one mutating command
type Notice struct {
	RequestID string
	Function  protocol.FunctionName
	Message   string
	Success   bool
}

// Notifier shows or forwards notices
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices to the log
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notice) {
	if n.Success {
		L_info("status: ok", "message", n.Message, "function", n.Function, "request", n.RequestID)
		return
	}
	L_warn("status: failed", "message", n.Message, "function", n.Function, "request", n.RequestID)
}

type requestKey struct{}

// WithRequestID tags ctx with the request being executed
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// RequestIDFrom returns the request id set by WithRequestID
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestKey{}).(string)
	return id
}
