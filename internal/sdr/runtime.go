package sdr

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var (
	// ErrRuntimeNotFound is returned when the sampler executable cannot be located
	ErrRuntimeNotFound = errors.New("runtime not found")
)

// FindRuntime locates the sampler executable. When dir is set the binary must
// be an executable file inside it; otherwise $PATH is searched.
func FindRuntime(dir, runtime string) (string, error) {
	if dir == "" {
		binPath, err := exec.LookPath(runtime)
		if err != nil {
			return "", fmt.Errorf("%w: `%s` not in PATH: %w", ErrRuntimeNotFound, runtime, err)
		}
		return binPath, nil
	}

	binPath := filepath.Join(dir, runtime)
	stat, err := os.Stat(binPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntimeNotFound, err)
	}
	if stat.IsDir() || stat.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: %s is not executable", ErrRuntimeNotFound, binPath)
	}

	return binPath, nil
}
