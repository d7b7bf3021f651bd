//go:build govips && cgo

package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVipsResizeHitsExactSize(t *testing.T) {
	require.NoError(t, Startup())

	sizes := []struct{ srcW, srcH, w, h int }{
		{1000, 333, 100, 33},
		{1024, 683, 500, 333},
		{7, 5, 3, 1},
		{600, 800, 200, 266},
	}
	for _, sz := range sizes {
		p := NewVips(DefaultOptions())
		require.NoError(t, p.Load(buildTestPNG(t, sz.srcW, sz.srcH), FormatPNG))
		require.NoError(t, p.Resize(sz.w, sz.h), "%dx%d -> %dx%d", sz.srcW, sz.srcH, sz.w, sz.h)
		assert.Equal(t, sz.w, p.Width())
		assert.Equal(t, sz.h, p.Height())
		require.NoError(t, p.Close())
	}
}
