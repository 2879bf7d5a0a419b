// Package projection reduces embedding vectors to 3-D coordinates for
// visualization. It fits PCA per request on exactly the vectors it is given,
// so coordinates are only comparable within one call.
package projection

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// minVectors is the smallest input PCA is fitted on
const minVectors = 3

// Fallback selects what happens when there are too few vectors to fit PCA
type Fallback int

const (
	// FallbackZero places every point at the origin
	FallbackZero Fallback = iota
	// FallbackScatter places points uniformly in [-ScatterExtent, ScatterExtent]^3
	FallbackScatter
)

// ScatterExtent bounds the scatter fallback
const ScatterExtent = 5.0

// Options configures a projection
type Options struct {
	Fallback Fallback
	// Seed makes the scatter fallback reproducible
	Seed int64
	// Radius scales output so the largest absolute coordinate equals it.
	// Zero leaves PCA scores unscaled.
	Radius float64
}

// SearchOptions is the policy used for search results.
func SearchOptions() Options {
	return Options{Fallback: FallbackZero}
}

// GalaxyOptions is the policy used for the galaxy view.
func GalaxyOptions() Options {
	return Options{
		Fallback: FallbackScatter,
		Seed:     42,
		Radius:   domain.GalaxyRadius,
	}
}

// Project fits PCA on [query; docs] and returns the query point followed by
// one point per document. A nil query is projected with the docs only and
// comes back as the origin.
func Project(docs []domain.Vector, query domain.Vector, opts Options) (domain.Point3D, []domain.Point3D, error) {
	if query == nil {
		points, err := ProjectAll(docs, opts)
		return domain.Point3D{}, points, err
	}

	all := make([]domain.Vector, 0, len(docs)+1)
	all = append(all, query)
	all = append(all, docs...)
	points, err := ProjectAll(all, opts)
	if err != nil {
		return domain.Point3D{}, nil, err
	}
	return points[0], points[1:], nil
}

// ProjectAll projects every vector into 3-D in input order.
func ProjectAll(vectors []domain.Vector, opts Options) ([]domain.Point3D, error) {
	if len(vectors) == 0 {
		return []domain.Point3D{}, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", domain.ErrConfiguration, i, len(v), dim)
		}
	}

	if len(vectors) < minVectors || dim == 0 {
		return fallback(len(vectors), opts), nil
	}

	points, ok := pca(vectors, dim)
	if !ok {
		return fallback(len(vectors), opts), nil
	}
	if opts.Radius > 0 {
		scale(points, opts.Radius)
	}
	return points, nil
}

func pca(vectors []domain.Vector, dim int) ([]domain.Point3D, bool) {
	n := len(vectors)
	data := mat.NewDense(n, dim, nil)
	for i, v := range vectors {
		for j, x := range v {
			data.Set(i, j, float64(x))
		}
	}

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return nil, false
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	_, cols := vecs.Dims()
	k := cols
	if k > 3 {
		k = 3
	}
	fixSigns(&vecs, k)

	means := make([]float64, dim)
	for j := 0; j < dim; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}

	points := make([]domain.Point3D, n)
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			var s float64
			for j := 0; j < dim; j++ {
				s += (data.At(i, j) - means[j]) * vecs.At(j, c)
			}
			points[i][c] = finite(s)
		}
		// Components beyond k stay zero
	}
	return points, true
}

// fixSigns flips each of the first k components so its largest-magnitude
// loading is positive.
func fixSigns(vecs *mat.Dense, k int) {
	rows, _ := vecs.Dims()
	for c := 0; c < k; c++ {
		var maxAbs, sign float64 = -1, 1
		for r := 0; r < rows; r++ {
			x := vecs.At(r, c)
			if math.Abs(x) > maxAbs {
				maxAbs = math.Abs(x)
				sign = x
			}
		}
		if sign < 0 {
			for r := 0; r < rows; r++ {
				vecs.Set(r, c, -vecs.At(r, c))
			}
		}
	}
}

func fallback(n int, opts Options) []domain.Point3D {
	points := make([]domain.Point3D, n)
	if opts.Fallback != FallbackScatter {
		return points
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	for i := range points {
		for c := 0; c < 3; c++ {
			points[i][c] = (rng.Float64()*2 - 1) * ScatterExtent
		}
	}
	return points
}

// scale recenters on the centroid and scales so the largest absolute
// coordinate equals radius. All-zero input is left as is.
func scale(points []domain.Point3D, radius float64) {
	var centroid domain.Point3D
	for _, p := range points {
		for c := 0; c < 3; c++ {
			centroid[c] += p[c]
		}
	}
	for c := 0; c < 3; c++ {
		centroid[c] /= float64(len(points))
	}

	var maxAbs float64
	for i := range points {
		for c := 0; c < 3; c++ {
			points[i][c] -= centroid[c]
			maxAbs = math.Max(maxAbs, math.Abs(points[i][c]))
		}
	}
	if maxAbs == 0 || math.IsNaN(maxAbs) || math.IsInf(maxAbs, 0) {
		return
	}
	f := radius / maxAbs
	for i := range points {
		for c := 0; c < 3; c++ {
			points[i][c] = finite(points[i][c] * f)
		}
	}
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
