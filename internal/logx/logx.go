// Package logx contains logging extensions built on top of
// github.com/apex/log and the [model.Logger] interface.
package logx

import (
	"fmt"

	"github.com/apex/log"
	"github.com/netshape/tsproxy/internal/model"
)

// PrefixLogger is a [model.Logger] that adds a prefix to each message.
type PrefixLogger struct {
	// Prefix is the MANDATORY prefix.
	Prefix string

	// Logger is the MANDATORY underlying logger.
	Logger model.Logger
}

var _ model.Logger = &PrefixLogger{}

// NewConnLogger returns the logger used by the handlers of a given connection.
func NewConnLogger(logger model.Logger, connID int64) *PrefixLogger {
	return &PrefixLogger{
		Prefix: fmt.Sprintf("[%d] ", connID),
		Logger: model.ValidLoggerOrDefault(logger),
	}
}

// Debug implements model.Logger.
func (p *PrefixLogger) Debug(msg string) {
	p.Logger.Debug(p.Prefix + msg)
}

// Debugf implements model.Logger.
func (p *PrefixLogger) Debugf(format string, v ...interface{}) {
	p.Logger.Debugf(p.Prefix+format, v...)
}

// Info implements model.Logger.
func (p *PrefixLogger) Info(msg string) {
	p.Logger.Info(p.Prefix + msg)
}

// Infof implements model.Logger.
func (p *PrefixLogger) Infof(format string, v ...interface{}) {
	p.Logger.Infof(p.Prefix+format, v...)
}

// Warn implements model.Logger.
func (p *PrefixLogger) Warn(msg string) {
	p.Logger.Warn(p.Prefix + msg)
}

// Warnf implements model.Logger.
func (p *PrefixLogger) Warnf(format string, v ...interface{}) {
	p.Logger.Warnf(p.Prefix+format, v...)
}

// LevelFromVerbosity maps the number of -v flags to a log level: no
// flag only shows fatal messages, then error, warn, info and debug.
func LevelFromVerbosity(verbosity int) log.Level {
	switch {
	case verbosity <= 0:
		return log.FatalLevel
	case verbosity == 1:
		return log.ErrorLevel
	case verbosity == 2:
		return log.WarnLevel
	case verbosity == 3:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}
