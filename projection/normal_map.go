package projection

import (
	"image"

	"github.com/golang/geo/r3"

	"go.viam.com/odometry/utils"
)

const minNormalNorm = 1e-12

// EstimateNormalMap computes a normal for each point of a vertex map from the cross product of
// the vectors to its right and lower neighbors, falling back to the left and upper neighbors at
// the border or next to empty cells. Normals face the sensor at the origin. Cells whose normal
// cannot be computed are null.
func EstimateNormalMap(vm *VertexMap) *NormalMap {
	normals := NewVertexMap(vm.Height, vm.Width)
	utils.ParallelForEachPixel(image.Point{X: vm.Width, Y: vm.Height}, func(col, row int) {
		p := vm.At(row, col)
		if IsNull(p) {
			return
		}
		horizontal, ok := neighborOffset(vm, row, col, 0, 1)
		if !ok {
			return
		}
		vertical, ok := neighborOffset(vm, row, col, 1, 0)
		if !ok {
			return
		}
		n := horizontal.Cross(vertical)
		norm := n.Norm()
		if norm < minNormalNorm {
			return
		}
		n = n.Mul(1 / norm)
		if n.Dot(p) > 0 {
			n = n.Mul(-1)
		}
		normals.Set(row, col, n)
	})
	return normals
}

// neighborOffset returns the vector from a cell to its neighbor in the given direction, or
// in the opposite direction when the first one is missing.
func neighborOffset(vm *VertexMap, row, col, dRow, dCol int) (r3.Vector, bool) {
	p := vm.At(row, col)
	for _, sign := range []int{1, -1} {
		r, c := row+sign*dRow, col+sign*dCol
		if !vm.InBounds(r, c) {
			continue
		}
		if q := vm.At(r, c); !IsNull(q) {
			return q.Sub(p), true
		}
	}
	return r3.Vector{}, false
}
