package notifier

import (
	"context"

	"github.com/nimasrn/support-inbox/pkg/logger"
)

// LogNotifier only logs the outgoing mail. Used in development.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("[notifier] mail", "to", to, "subject", subject, "bytes", len(body))
	return &SendResult{Success: true, Provider: DriverLog}, nil
}

func (n *LogNotifier) Close() error {
	return nil
}
