package sdr

import (
	"fmt"
	"os/exec"
)

// FindRuntime locates an SDR capture tool binary on PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", fmt.Errorf("locating '%s': %w", runtime, err)
	}
	return binPath, nil
}
