package index

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	_, err = Build([]domain.Vector{{1, 2}, {1, 2, 3}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = Build([]domain.Vector{{}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestBuild_CopiesInput(t *testing.T) {
	v := []domain.Vector{{1, 2}}
	f, err := Build(v)
	require.NoError(t, err)
	v[0][0] = 99
	assert.Equal(t, domain.Vector{1, 2}, f.Vector(0))
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 2, f.Dim())
}

func TestSearch_OrderAndLimit(t *testing.T) {
	f, err := Build([]domain.Vector{{3, 0}, {1, 0}, {0, 0}, {2, 0}})
	require.NoError(t, err)

	hits, err := f.Search(domain.Vector{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{2, 1, 3}, positions(hits))
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-12)
	assert.InDelta(t, 1.0, hits[1].Distance, 1e-12)
	assert.InDelta(t, 2.0, hits[2].Distance, 1e-12)

	all, err := f.Search(domain.Vector{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := f.Search(domain.Vector{0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	f, err := Build([]domain.Vector{{0, 1}, {1, 0}, {0, -1}, {-1, 0}, {5, 5}})
	require.NoError(t, err)
	hits, err := f.Search(domain.Vector{0, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, positions(hits))
}

func TestSearch_DimensionMismatch(t *testing.T) {
	f, err := Build([]domain.Vector{{1, 2}})
	require.NoError(t, err)
	_, err = f.Search(domain.Vector{1}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSearch_SortedByDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f, err := Build(randomVectors(rng, 200, 16))
	require.NoError(t, err)
	hits, err := f.Search(randomVectors(rng, 1, 16)[0], 50)
	require.NoError(t, err)
	for i := 1; i < len(hits); i++ {
		prev, cur := hits[i-1], hits[i]
		require.LessOrEqual(t, prev.Distance, cur.Distance)
		if prev.Distance == cur.Distance {
			require.Less(t, prev.Position, cur.Position)
		}
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vecs := randomVectors(rng, 64, 8)
	vecs = append(vecs, domain.Vector{1e30, 0, 0, 0, 0, 0, 0, float32(math.SmallestNonzeroFloat32)})
	f, err := Build(vecs)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index", "sections.idx")
	require.NoError(t, Save(f, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, f.Len(), loaded.Len())
	assert.Equal(t, f.Dim(), loaded.Dim())
	for i := 0; i < f.Len(); i++ {
		assert.Equal(t, f.Vector(i), loaded.Vector(i))
	}

	for _, q := range randomVectors(rng, 5, 8) {
		want, err := f.Search(q, 10)
		require.NoError(t, err)
		got, err := loaded.Search(q, 10)
		require.NoError(t, err)
		require.Equal(t, positions(want), positions(got))
		for i := range want {
			assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-6)
		}
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.idx"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrIndexIO)
}

func TestLoad_Corrupt(t *testing.T) {
	f, err := Build([]domain.Vector{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.idx")
	require.NoError(t, Save(f, good))
	raw, err := os.ReadFile(good)
	require.NoError(t, err)

	flipped := append([]byte(nil), raw...)
	flipped[headerSize+1] ^= 0xff

	badMagic := append([]byte(nil), raw...)
	copy(badMagic, "FAIS")

	cases := map[string][]byte{
		"empty":     {},
		"truncated": raw[:len(raw)-5],
		"bitflip":   flipped,
		"magic":     badMagic,
		"garbage":   []byte("this is not an index file at all"),
		"oversized": forgedHeader(1<<31, 1<<31, nil),
		"short":     forgedHeader(4, 3, make([]byte, 4*4*2)),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".idx")
			require.NoError(t, os.WriteFile(path, data, 0o644))
			_, err := Load(path)
			assert.ErrorIs(t, err, domain.ErrCorruptIndex)
			assert.ErrorIs(t, err, domain.ErrIndexIO)
		})
	}
}

// forgedHeader builds a file with a valid magic, version and checksum but
// arbitrary dimension and count.
func forgedHeader(dim, count uint32, payload []byte) []byte {
	body := make([]byte, headerSize, headerSize+len(payload)+4)
	copy(body, magic[:])
	binary.LittleEndian.PutUint16(body[4:], formatVersion)
	binary.LittleEndian.PutUint32(body[6:], dim)
	binary.LittleEndian.PutUint32(body[10:], count)
	body = append(body, payload...)
	return binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(body))
}

func positions(hits []domain.Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}

func randomVectors(rng *rand.Rand, n, dim int) []domain.Vector {
	out := make([]domain.Vector, n)
	for i := range out {
		v := make(domain.Vector, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}
