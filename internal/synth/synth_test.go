package synth

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	normalmap "github.com/SpookyIluha/normalmap-ucodetest"
)

func TestFlatDecodesToZero(t *testing.T) {
	for _, tx := range Flat(3) {
		dx, dy := normalmap.DecodeNormal(tx, normalmap.MaxStrength)
		require.Zero(t, dx)
		require.Zero(t, dy)
	}
}

func TestEncodeNormal(t *testing.T) {
	assert.Equal(t, normalmap.Texel32{R: 128, G: 128, B: 255, A: 255}, EncodeNormal(mgl32.Vec3{0, 0, 1}))
	assert.Equal(t, normalmap.Texel32{R: 255, G: 128, B: 128, A: 255}, EncodeNormal(mgl32.Vec3{1, 0, 0}))
	assert.Equal(t, normalmap.Texel32{R: 1, G: 128, B: 128, A: 255}, EncodeNormal(mgl32.Vec3{-1, 0, 0}))
}

func TestWaves(t *testing.T) {
	const size = 5
	n := 1 << size

	assert.Equal(t, Flat(size), Waves(size, 2, 0), "zero amplitude is flat")

	normal := Waves(size, 2, 4)
	require.Len(t, normal, n*n)
	varied := false
	for _, tx := range normal {
		require.Greater(t, tx.B, uint8(128), "normals face the viewer")
		if tx.R != 128 || tx.G != 128 {
			varied = true
		}
	}
	assert.True(t, varied, "waves should perturb the normals")
}

func TestCheckerIsSquareEnvironment(t *testing.T) {
	img := Checker(16, 4)
	env, err := normalmap.Env16FromImage(img)
	require.NoError(t, err)
	assert.Len(t, env, 256)
	assert.NotEqual(t, env[0], env[4], "adjacent cells differ")
}

func TestRandomIsSeeded(t *testing.T) {
	assert.Equal(t, Random32(32, 1), Random32(32, 1))
	assert.NotEqual(t, Random16(32, 1), Random16(32, 2))
}
