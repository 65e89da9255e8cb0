package service

import "go.uber.org/zap"

// Notifier surfaces user-facing notifications.
type Notifier interface {
	Success(title, message string)
	Error(title, message string)
}

// LogNotifier writes notifications to the logger; used by the CLI.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Success implements Notifier.
func (n *LogNotifier) Success(title, message string) {
	n.logger.Info(title, zap.String("notification", "success"), zap.String("detail", message))
}

// Error implements Notifier.
func (n *LogNotifier) Error(title, message string) {
	n.logger.Error(title, zap.String("notification", "error"), zap.String("detail", message))
}
