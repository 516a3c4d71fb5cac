// Package logger constructs the zap.SugaredLogger used throughout the
// store. It centralizes the choice between a development and a
// production zap configuration so every component logs consistently.
package logger

import "go.uber.org/zap"

// New builds a *zap.SugaredLogger for service, using zap's production
// encoder config. Falls back to a no-op logger if zap's internal setup
// fails, since a store should never refuse to open merely because
// logging could not be configured.
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("service", service)
}

// NewDevelopment builds a *zap.SugaredLogger with zap's development
// encoder config (human-readable, colorized, caller-annotated), for
// callers where console output matters more than structured JSON fields.
// kvstore.Open and the commands built on it use New instead.
func NewDevelopment(service string) *zap.SugaredLogger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("service", service)
}
