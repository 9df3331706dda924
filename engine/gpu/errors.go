package gpu

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoAdapter is returned when no hardware adapter compatible with the surface exists.
	ErrNoAdapter = errors.New("gpu: no compatible adapter")

	// ErrSurfaceOutdated means the surface configuration no longer matches the window and must be
	// reconfigured before another image can be acquired.
	ErrSurfaceOutdated = errors.New("gpu: surface outdated")

	// ErrSurfaceTimeout means no image became available in time. The frame can be skipped.
	ErrSurfaceTimeout = errors.New("gpu: surface acquire timeout")

	// ErrSurfaceLost means the surface is gone and cannot be recovered.
	ErrSurfaceLost = errors.New("gpu: surface lost")
)

// ClassifyAcquireError maps a raw backend acquisition error onto the surface sentinels.
// The native layer only reports the acquisition status in the error text, so matching is done on
// the status names. Unrecognized errors are returned unchanged and nil stays nil.
//
// Parameters:
//   - err: the raw error returned by the backend
//
// Returns:
//   - error: an error wrapping one of the sentinels, or err itself
func ClassifyAcquireError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSurfaceOutdated) || errors.Is(err, ErrSurfaceTimeout) || errors.Is(err, ErrSurfaceLost) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "outdated"):
		return fmt.Errorf("%w: %v", ErrSurfaceOutdated, err)
	case strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", ErrSurfaceTimeout, err)
	case strings.Contains(msg, "lost"):
		return fmt.Errorf("%w: %v", ErrSurfaceLost, err)
	default:
		return err
	}
}
