package reminder

import (
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type gocronLogger struct {
	l *zap.SugaredLogger
}

// NewGocronLogger routes gocron's key-value logging to zap.
func NewGocronLogger(l *zap.SugaredLogger) gocron.Logger {
	return &gocronLogger{l: l.Named("gocron")}
}

func (g *gocronLogger) Debug(msg string, args ...any) { g.l.Debugw(msg, args...) }
func (g *gocronLogger) Info(msg string, args ...any)  { g.l.Infow(msg, args...) }
func (g *gocronLogger) Warn(msg string, args ...any)  { g.l.Warnw(msg, args...) }
func (g *gocronLogger) Error(msg string, args ...any) { g.l.Errorw(msg, args...) }
