package normalmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatNormalReproducesEnvironment(t *testing.T) {
	const size, strength = 5, 5
	n := 1 << size
	normal := filledNormal(size, Texel32{R: 128, G: 128, B: 255, A: 255})

	t.Run("opt32", func(t *testing.T) {
		env := randomTexels32(n*n, 1)
		dst := make([]Texel32, n*n)
		require.NoError(t, ReflectOpt32(normal, env, dst, size, 0, 0, strength))
		assert.Equal(t, env, dst)
	})
	t.Run("opt16", func(t *testing.T) {
		env := randomTexels16(n*n, 2)
		dst := make([]Texel16, n*n)
		require.NoError(t, ReflectOpt16(normal, env, dst, size, 0, 0, strength))
		assert.Equal(t, env, dst)
	})
}

// Random 16-bit patterns, including ones that are not valid RGBA5551 in any
// meaningful sense, must come through untouched.
func TestOpaque16BitCopy(t *testing.T) {
	const size = 6
	n := 1 << size
	env := randomTexels16(n*n, 99)
	env[0], env[1] = 0xFFFF, 0x0000
	dst := make([]Texel16, n*n)
	for strength := 0; strength <= MaxStrength; strength++ {
		require.NoError(t, ReflectOpt16(filledNormal(size, NeutralNormal), env, dst, size, 0, 0, strength))
		require.Equal(t, env, dst, "strength %d", strength)
	}
}

func TestFlatNormalShiftTranslates(t *testing.T) {
	const size = 4
	n := 1 << size
	env := randomTexels32(n*n, 3)
	dst := make([]Texel32, n*n)
	normal := filledNormal(size, NeutralNormal)

	for _, shift := range [][2]int{{3, 0}, {0, -5}, {-70000, 123456}, {n, -n}} {
		require.NoError(t, ReflectOpt32(normal, env, dst, size, shift[0], shift[1], 5))
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				want := env[Wrap(i+shift[1], n)*n+Wrap(j+shift[0], n)]
				if dst[i*n+j] != want {
					t.Fatalf("shift %v: dst[%d][%d] = %v, want %v", shift, i, j, dst[i*n+j], want)
				}
			}
		}
	}
}

// r=138, g=118 decodes to dx=+1, dy=-2 at strength 5. The opt variants add
// dx, the filtered ones subtract it; both subtract dy.
func TestVariantSignConventions(t *testing.T) {
	const size, strength = 4, 5
	n := 1 << size
	normal := filledNormal(size, Texel32{R: 138, G: 118, B: 255, A: 255})
	env := randomTexels32(n*n, 4)

	opt := make([]Texel32, n*n)
	filt := make([]Texel32, n*n)
	require.NoError(t, ReflectOpt32(normal, env, opt, size, 0, 0, strength))
	require.NoError(t, ReflectFilt32(normal, env, filt, size, 0, 0, 0, strength))

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			y := Wrap(i+2, n)
			assert.Equal(t, env[y*n+Wrap(j+1, n)], opt[i*n+j], "opt (%d,%d)", i, j)
			assert.Equal(t, env[y*n+Wrap(j-1, n)], filt[i*n+j], "filt (%d,%d)", i, j)
		}
	}
}

// Mirroring the X deltas of the normal map turns the filtered variant at
// filterFactor 0 into the unfiltered one. At strength 8 dx is r-128, so the
// mirror of r is 256-r; r=0 has no mirror and is excluded.
func TestFilteredMatchesUnfilteredWithMirroredX(t *testing.T) {
	const size, strength = 5, 8
	n := 1 << size
	normal := randomTexels32(n*n, 5)
	mirrored := make([]Texel32, n*n)
	for i, tx := range normal {
		if tx.R == 0 {
			tx.R = 1
			normal[i] = tx
		}
		mirrored[i] = Texel32{R: uint8(256 - int(tx.R)), G: tx.G, B: tx.B, A: tx.A} //nolint:gosec // r in [1,255]
	}

	env32 := randomTexels32(n*n, 6)
	opt32 := make([]Texel32, n*n)
	filt32 := make([]Texel32, n*n)
	require.NoError(t, ReflectOpt32(normal, env32, opt32, size, 9, -4, strength))
	require.NoError(t, ReflectFilt32(mirrored, env32, filt32, size, 0, 9, -4, strength))
	assert.Equal(t, opt32, filt32)

	env16 := randomTexels16(n*n, 7)
	opt16 := make([]Texel16, n*n)
	filt16 := make([]Texel16, n*n)
	require.NoError(t, ReflectOpt16(normal, env16, opt16, size, -3, 17, strength))
	require.NoError(t, ReflectFilt16(mirrored, env16, filt16, size, 0, -3, 17, strength))
	assert.Equal(t, opt16, filt16)
}

func TestFilteredAddressesMagnifiedRows(t *testing.T) {
	const size, ff = 3, 2
	n := 1 << size
	w := n << ff
	env := make([]Texel16, w*w)
	for i := range env {
		env[i] = Texel16(i) //nolint:gosec // w*w fits in 16 bits
	}
	dst := make([]Texel16, n*n)
	require.NoError(t, ReflectFilt16(filledNormal(size, NeutralNormal), env, dst, size, ff, 1, 2, 5))

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := Texel16((i*4+2)*w + j*4 + 1) //nolint:gosec // fits
			require.Equal(t, want, dst[i*n+j], "dst[%d][%d]", i, j)
		}
	}
}

func TestSourceCoordinatesStayInRange(t *testing.T) {
	const size = 3
	n := 1 << size
	normal := randomTexels32(n*n, 8)
	env := randomTexels32(n*n, 9)
	dst := make([]Texel32, n*n)
	for _, shift := range []int{-1 << 30, -65537, -1, 0, 1, 65536, 1 << 30} {
		for strength := 0; strength <= MaxStrength; strength++ {
			require.NoError(t, ReflectOpt32(normal, env, dst, size, shift, -shift, strength))
			require.NoError(t, ReflectFilt32(normal, env, dst, size, 0, shift, shift, strength))
		}
	}
}

func TestReflectRejectsBadInput(t *testing.T) {
	const size = 3
	n := 1 << size
	normal := filledNormal(size, NeutralNormal)
	env := make([]Texel32, n*n)
	dst := make([]Texel32, n*n)

	tests := []struct {
		name  string
		call  func() error
		param string
		shape string
	}{
		{"negative size", func() error { return ReflectOpt32(normal, env, dst, -1, 0, 0, 5) }, "size", ""},
		{"size too large", func() error { return ReflectOpt32(normal, env, dst, MaxSize+1, 0, 0, 5) }, "size", ""},
		{"strength too large", func() error { return ReflectOpt32(normal, env, dst, size, 0, 0, 9) }, "strength", ""},
		{"negative strength", func() error { return ReflectOpt32(normal, env, dst, size, 0, 0, -1) }, "strength", ""},
		{"filter factor too large", func() error { return ReflectFilt32(normal, env, dst, size, MaxFilterFactor+1, 0, 0, 5) }, "filterFactor", ""},
		{"short normal", func() error { return ReflectOpt32(normal[1:], env, dst, size, 0, 0, 5) }, "", "normal map"},
		{"short env", func() error { return ReflectOpt32(normal, env[1:], dst, size, 0, 0, 5) }, "", "environment map"},
		{"long dst", func() error { return ReflectOpt32(normal, env, append(dst, Texel32{}), size, 0, 0, 5) }, "", "destination map"},
		{"unmagnified env", func() error { return ReflectFilt32(normal, env, dst, size, 1, 0, 0, 5) }, "", "environment map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContractViolation)
			if tt.param != "" {
				var pe *ParamError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.param, pe.Name)
			}
			if tt.shape != "" {
				var se *ShapeError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.shape, se.Buffer)
				assert.ErrorIs(t, err, ErrShapeMismatch)
			}
		})
	}
}

func TestReflectGenericDispatch(t *testing.T) {
	const size = 3
	n := 1 << size
	normal := filledNormal(size, NeutralNormal)
	env16 := randomTexels16(n*n, 10)
	dst16 := make([]Texel16, n*n)

	err := Reflect(Opt32, normal, env16, dst16, Params{Size: size, Strength: 5})
	assert.ErrorIs(t, err, ErrContractViolation, "32-bit variant on 16-bit buffers")

	err = Reflect(Opt16, normal, env16, dst16, Params{Size: size, FilterFactor: 1, Strength: 5})
	var pe *ParamError
	require.ErrorAs(t, err, &pe, "unfiltered variant with filterFactor")
	assert.Equal(t, "filterFactor", pe.Name)

	err = Reflect(Variant(42), normal, env16, dst16, Params{Size: size, Strength: 5})
	assert.True(t, errors.Is(err, ErrContractViolation))

	require.NoError(t, Reflect(Opt16, normal, env16, dst16, Params{Size: size, Strength: 5}))
	assert.Equal(t, env16, dst16)
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "opt32", Opt32.String())
	assert.Equal(t, "filt16", Filt16.String())
	assert.Equal(t, "Variant(9)", Variant(9).String())
	assert.True(t, Filt32.Filtered())
	assert.False(t, Opt16.Filtered())
	assert.Equal(t, 16, Opt16.Bits())
	assert.Equal(t, 0, Variant(9).Bits())
}

func TestReflectDoesNotAllocate(t *testing.T) {
	const size = 5
	n := 1 << size
	normal := randomTexels32(n*n, 11)
	env := randomTexels16(n*n, 12)
	dst := make([]Texel16, n*n)
	allocs := testing.AllocsPerRun(10, func() {
		_ = ReflectOpt16(normal, env, dst, size, 3, 4, 5)
	})
	assert.Zero(t, allocs)
}
