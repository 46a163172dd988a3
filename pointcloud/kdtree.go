package pointcloud

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// indexedPoint is a point that remembers its position in the source slice.
type indexedPoint struct {
	r3.Vector
	idx int
}

// Compare returns the signed distance of p from the plane passing through c and
// perpendicular to the dimension d.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		return p.Z - q.Z
	}
}

// Dims returns the number of dimensions described by the receiver.
func (p indexedPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between c and the receiver.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	return p.Sub(q.Vector).Norm2()
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Pivot(d kdtree.Dim) int                { return plane{indexedPoints: p, Dim: d}.Pivot() }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane is required to help points sort along a dimension.
type plane struct {
	kdtree.Dim
	indexedPoints
}

func (p plane) Less(i, j int) bool {
	return p.indexedPoints[i].Compare(p.indexedPoints[j], p.Dim) < 0
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedPoints = p.indexedPoints[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// Neighbor is a search result: the index of a point in the indexed slice and its squared
// distance to the query.
type Neighbor struct {
	Index     int
	Distance2 float64
}

// KDTree answers nearest neighbor queries over a fixed set of points. It is safe for
// concurrent queries once built.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree indexes the given points. The slice is not retained.
func NewKDTree(points []r3.Vector) *KDTree {
	indexed := make(indexedPoints, len(points))
	for i, p := range points {
		indexed[i] = indexedPoint{Vector: p, idx: i}
	}
	return &KDTree{tree: kdtree.New(indexed, false), size: len(points)}
}

// Size returns the number of indexed points.
func (kd *KDTree) Size() int {
	return kd.size
}

// Nearest returns the closest indexed point. ok is false when the tree is empty. Among
// points at the same distance the result depends only on the indexed set and the query.
func (kd *KDTree) Nearest(q r3.Vector) (Neighbor, bool) {
	if kd.size == 0 {
		return Neighbor{}, false
	}
	c, d := kd.tree.Nearest(indexedPoint{Vector: q})
	if c == nil {
		return Neighbor{}, false
	}
	return Neighbor{Index: c.(indexedPoint).idx, Distance2: d}, true
}

// KNearest returns up to k indexed points closest to q ordered by distance, then by index.
func (kd *KDTree) KNearest(q r3.Vector, k int) []Neighbor {
	if kd.size == 0 || k <= 0 {
		return nil
	}
	keeper := kdtree.NewNKeeper(k)
	kd.tree.NearestSet(keeper, indexedPoint{Vector: q})
	out := make([]Neighbor, 0, k)
	for _, c := range keeper.Heap {
		// the keeper starts with a sentinel that stays when fewer than k points exist
		if c.Comparable == nil {
			continue
		}
		out = append(out, Neighbor{Index: c.Comparable.(indexedPoint).idx, Distance2: c.Dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance2 != out[j].Distance2 {
			return out[i].Distance2 < out[j].Distance2
		}
		return out[i].Index < out[j].Index
	})
	return out
}
