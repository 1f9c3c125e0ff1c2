package logger

import "context"

// multiLogger fans every call out to a fixed set of loggers.
type multiLogger struct {
	loggers []Logger
}

// Multi returns a Logger that writes each entry to all of the given loggers.
// Nil loggers are skipped.
func Multi(loggers ...Logger) Logger {
	m := &multiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *multiLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	for _, l := range m.loggers {
		l.Debug(ctx, msg, fields)
	}
}

func (m *multiLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	for _, l := range m.loggers {
		l.Info(ctx, msg, fields)
	}
}

func (m *multiLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	for _, l := range m.loggers {
		l.Warn(ctx, msg, fields)
	}
}

func (m *multiLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	for _, l := range m.loggers {
		l.Error(ctx, msg, fields)
	}
}

func (m *multiLogger) WithField(key string, value interface{}) Logger {
	out := make([]Logger, len(m.loggers))
	for i, l := range m.loggers {
		out[i] = l.WithField(key, value)
	}
	return &multiLogger{loggers: out}
}

func (m *multiLogger) WithFields(fields map[string]interface{}) Logger {
	out := make([]Logger, len(m.loggers))
	for i, l := range m.loggers {
		out[i] = l.WithFields(fields)
	}
	return &multiLogger{loggers: out}
}
