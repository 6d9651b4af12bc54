package mixvol

import (
	"fmt"

	"go.uber.org/zap"
)

// Audio holds the default output endpoint and a resolver for the sessions playing through it
type Audio struct {
	Endpoint *Endpoint
	Resolver *Resolver

	logger  *zap.SugaredLogger
	backend AudioBackend
}

// OpenAudio binds the platform's default output device
func OpenAudio(logger *zap.SugaredLogger) (*Audio, error) {
	logger = logger.Named("audio")

	backend, err := newAudioBackend(logger)
	if err != nil {
		logger.Warnw("Failed to create audio backend", "error", err)
		return nil, fmt.Errorf("create audio backend: %w", err)
	}

	return newAudio(logger, backend, NewProcessDirectory()), nil
}

func newAudio(logger *zap.SugaredLogger, backend AudioBackend, processes ProcessDirectory) *Audio {
	endpoint := NewEndpoint(logger, backend.DefaultEndpoint())

	return &Audio{
		Endpoint: endpoint,
		Resolver: NewResolver(logger, endpoint, backend.SessionDirectory(), processes),
		logger:   logger,
		backend:  backend,
	}
}

// Release frees the backend. Sessions bound through the resolver must be released first.
func (a *Audio) Release() error {
	if err := a.backend.Release(); err != nil {
		a.logger.Warnw("Failed to release audio backend", "error", err)
		return fmt.Errorf("release audio backend: %w", err)
	}

	return nil
}
