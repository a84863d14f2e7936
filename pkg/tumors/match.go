package tumors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// centroid is a tumor centre in image-normalized coordinates. idx survives
// the reordering done while the tree is built.
type centroid struct {
	X, Y float64
	idx  int
}

// Compare implements the kdtree.Comparable interface
func (p centroid) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(centroid)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p centroid) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two centroids
func (p centroid) Distance(c kdtree.Comparable) float64 {
	q := c.(centroid)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// centroids satisfies kdtree.Interface
type centroids []centroid

func (p centroids) Index(i int) kdtree.Comparable         { return p[i] }
func (p centroids) Len() int                              { return len(p) }
func (p centroids) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p centroids) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{centroids: p, Dim: d}, kdtree.MedianOfRandoms(plane{centroids: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for centroids
type plane struct {
	centroids
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.centroids[i].X < p.centroids[j].X
	}
	return p.centroids[i].Y < p.centroids[j].Y
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{centroids: p.centroids[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

type pair struct {
	fixed, moving int
	distance      float64
}

func normalizedCentroids(scan Scan) centroids {
	w, h := float64(scan.ImageSize.Width), float64(scan.ImageSize.Height)
	out := make(centroids, len(scan.Tumors))
	for i, t := range scan.Tumors {
		out[i] = centroid{X: t.Center[0] / w, Y: t.Center[1] / h, idx: i}
	}
	return out
}

// match pairs tumors one-to-one, closest first, ignoring pairs farther
// apart than maxDist. Ties break on fixed then moving order.
func match(fixed, moving Scan, maxDist float64) []pair {
	if len(fixed.Tumors) == 0 || len(moving.Tumors) == 0 || maxDist <= 0 {
		return nil
	}

	tree := kdtree.New(normalizedCentroids(fixed), true)
	radius := maxDist * maxDist

	var candidates []pair
	for _, m := range normalizedCentroids(moving) {
		// Room for every fixed centroid plus the sentinel
		keeper := kdtree.NewNKeeper(len(fixed.Tumors) + 1)
		tree.NearestSet(keeper, m)
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil || item.Dist > radius {
				continue
			}
			f := item.Comparable.(centroid)
			candidates = append(candidates, pair{fixed: f.idx, moving: m.idx, distance: math.Sqrt(item.Dist)})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.fixed != b.fixed {
			return a.fixed < b.fixed
		}
		return a.moving < b.moving
	})

	usedFixed := make(map[int]bool)
	usedMoving := make(map[int]bool)
	var pairs []pair
	for _, c := range candidates {
		if usedFixed[c.fixed] || usedMoving[c.moving] {
			continue
		}
		usedFixed[c.fixed] = true
		usedMoving[c.moving] = true
		pairs = append(pairs, c)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].moving < pairs[j].moving })
	return pairs
}
