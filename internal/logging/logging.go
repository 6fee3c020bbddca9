package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Dev environments get the human-readable
// console encoder; everything else logs JSON for the collector.
func New(appEnv, service string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if appEnv == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}
