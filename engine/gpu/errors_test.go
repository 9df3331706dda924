package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAcquireError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"outdated status", errors.New("GetCurrentTexture: SurfaceGetCurrentTextureStatus_Outdated"), ErrSurfaceOutdated},
		{"timeout status", errors.New("surface status: Timeout"), ErrSurfaceTimeout},
		{"lost status", errors.New("surface lost"), ErrSurfaceLost},
		{"already classified", ErrSurfaceTimeout, ErrSurfaceTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ClassifyAcquireError(tt.err), tt.want)
		})
	}
}

func TestClassifyAcquireErrorPassThrough(t *testing.T) {
	assert.NoError(t, ClassifyAcquireError(nil))

	raw := errors.New("out of memory")
	got := ClassifyAcquireError(raw)
	assert.Same(t, raw, got)
	assert.NotErrorIs(t, got, ErrSurfaceOutdated)
	assert.NotErrorIs(t, got, ErrSurfaceTimeout)
}
