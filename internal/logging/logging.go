package logging

import (
	"go.uber.org/zap"
)

// New returns a development logger in gin's debug mode and a production
// logger otherwise.
func New(mode, service string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if mode == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}
