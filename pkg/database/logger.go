package database

import "go.uber.org/zap"

// logger is the package logger. Defaults to a nop logger; hosts that want
// setup and registry logs install their own via SetLogger.
var logger = zap.NewNop()

// SetLogger installs the logger used by the database registries. Passing nil
// restores the nop logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}
