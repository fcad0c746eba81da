package audit

import "github.com/rs/zerolog"

// ZerologLogger adapts a zerolog logger to Logger.
type ZerologLogger struct {
	Logger *zerolog.Logger
}

func (l ZerologLogger) Info(msg string, fields ...interface{}) {
	l.Logger.Info().Fields(fields).Msg(msg)
}

func (l ZerologLogger) Error(msg string, fields ...interface{}) {
	l.Logger.Error().Fields(fields).Msg(msg)
}

func (l ZerologLogger) Debug(msg string, fields ...interface{}) {
	l.Logger.Debug().Fields(fields).Msg(msg)
}
