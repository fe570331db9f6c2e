// Package logging constructs the *zap.Logger used throughout the core:
// zap.NewProduction() built in main and threaded down as an explicit
// constructor argument, never a package global.
package logging

import "go.uber.org/zap"

// New builds a production logger, or a development logger (caller line
// numbers, colorised level, console encoding) when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
