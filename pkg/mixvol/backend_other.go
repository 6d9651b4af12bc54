//go:build !linux && !windows

package mixvol

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

func newAudioBackend(logger *zap.SugaredLogger) (AudioBackend, error) {
	return nil, fmt.Errorf("no audio backend for %s", runtime.GOOS)
}
