package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func assertFinite(t *testing.T, points ...domain.Point3D) {
	t.Helper()
	for i, p := range points {
		for c, x := range p {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("point %d component %d is not finite: %v", i, c, x)
			}
		}
	}
}

func sampleVectors() []domain.Vector {
	return []domain.Vector{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 1, 0, 0},
		{0, 0.8, 0.2, 0},
		{0, 0, 0, 1},
	}
}

func TestProject_ShapesAndDeterminism(t *testing.T) {
	docs := sampleVectors()
	query := domain.Vector{0.5, 0.5, 0, 0}

	q1, p1, err := Project(docs, query, SearchOptions())
	require.NoError(t, err)
	require.Len(t, p1, len(docs))
	assertFinite(t, append(p1, q1)...)

	q2, p2, err := Project(docs, query, SearchOptions())
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, p1, p2)
}

func TestProject_SeparatesDistinctClusters(t *testing.T) {
	_, points, err := Project(sampleVectors(), domain.Vector{1, 0, 0, 0}, SearchOptions())
	require.NoError(t, err)

	dist := func(a, b domain.Point3D) float64 {
		var s float64
		for c := range a {
			s += (a[c] - b[c]) * (a[c] - b[c])
		}
		return math.Sqrt(s)
	}
	// near-duplicates land closer together than unrelated vectors
	assert.Less(t, dist(points[0], points[1]), dist(points[0], points[4]))
}

func TestProject_DegenerateIdenticalVectors(t *testing.T) {
	v := domain.Vector{0.3, 0.3, 0.3}
	q, points, err := Project([]domain.Vector{v, v, v}, v, GalaxyOptions())
	require.NoError(t, err)
	assertFinite(t, append(points, q)...)
}

func TestProject_DegenerateZeroVectors(t *testing.T) {
	z := domain.Vector{0, 0}
	_, points, err := Project([]domain.Vector{z, z, z, z}, z, SearchOptions())
	require.NoError(t, err)
	assertFinite(t, points...)
}

func TestProject_FewerThanThreeVectors(t *testing.T) {
	t.Run("zero fallback", func(t *testing.T) {
		q, points, err := Project([]domain.Vector{{1, 2}}, domain.Vector{3, 4}, SearchOptions())
		require.NoError(t, err)
		assert.Equal(t, domain.Point3D{}, q)
		assert.Equal(t, []domain.Point3D{{}}, points)
	})

	t.Run("scatter fallback", func(t *testing.T) {
		points, err := ProjectAll([]domain.Vector{{1, 2}, {3, 4}}, GalaxyOptions())
		require.NoError(t, err)
		require.Len(t, points, 2)
		for _, p := range points {
			for _, x := range p {
				assert.GreaterOrEqual(t, x, -ScatterExtent)
				assert.LessOrEqual(t, x, ScatterExtent)
			}
		}
		again, _ := ProjectAll([]domain.Vector{{1, 2}, {3, 4}}, GalaxyOptions())
		assert.Equal(t, points, again)
	})
}

func TestProject_FewDimensionsPadWithZeros(t *testing.T) {
	docs := []domain.Vector{{1}, {2}, {4}}
	_, points, err := Project(docs, domain.Vector{3}, SearchOptions())
	require.NoError(t, err)
	for _, p := range points {
		assert.Equal(t, 0.0, p[1])
		assert.Equal(t, 0.0, p[2])
	}
}

func TestProject_RadiusScaling(t *testing.T) {
	points, err := ProjectAll(sampleVectors(), GalaxyOptions())
	require.NoError(t, err)

	var maxAbs float64
	for _, p := range points {
		for _, x := range p {
			maxAbs = math.Max(maxAbs, math.Abs(x))
		}
	}
	assert.InDelta(t, domain.GalaxyRadius, maxAbs, 1e-9)
}

func TestProject_DimensionMismatch(t *testing.T) {
	_, _, err := Project([]domain.Vector{{1, 2}, {1, 2, 3}}, domain.Vector{1, 2}, SearchOptions())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestProject_NilQueryAndEmpty(t *testing.T) {
	q, points, err := Project(nil, nil, SearchOptions())
	require.NoError(t, err)
	assert.Equal(t, domain.Point3D{}, q)
	assert.Empty(t, points)
}
