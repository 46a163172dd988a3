// Package projection converts point sets to and from range-image vertex maps.
package projection

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// VertexMap is a height x width grid of 3D points stored row-major. The zero vector marks a
// cell without a return.
type VertexMap struct {
	Height int
	Width  int
	Data   []r3.Vector
}

// NormalMap holds one normal per cell of a VertexMap; the zero vector marks an undefined
// normal.
type NormalMap = VertexMap

// NewVertexMap returns an empty grid of the given size.
func NewVertexMap(height, width int) *VertexMap {
	return &VertexMap{Height: height, Width: width, Data: make([]r3.Vector, height*width)}
}

// IsNull reports whether a cell value is the "no point" sentinel.
func IsNull(v r3.Vector) bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Validate checks that the backing data matches the grid dimensions.
func (vm *VertexMap) Validate() error {
	if vm.Height <= 0 || vm.Width <= 0 {
		return errors.Errorf("vertex map dimensions must be positive, got %dx%d", vm.Height, vm.Width)
	}
	if len(vm.Data) != vm.Height*vm.Width {
		return errors.Errorf("vertex map of %dx%d holds %d cells", vm.Height, vm.Width, len(vm.Data))
	}
	return nil
}

// At returns the value at the given cell.
func (vm *VertexMap) At(row, col int) r3.Vector {
	return vm.Data[row*vm.Width+col]
}

// Set stores a value at the given cell.
func (vm *VertexMap) Set(row, col int, v r3.Vector) {
	vm.Data[row*vm.Width+col] = v
}

// InBounds reports whether the cell lies inside the grid.
func (vm *VertexMap) InBounds(row, col int) bool {
	return row >= 0 && row < vm.Height && col >= 0 && col < vm.Width
}

// Mask returns, for every cell, whether it holds a point.
func (vm *VertexMap) Mask() []bool {
	return lo.Map(vm.Data, func(v r3.Vector, _ int) bool {
		return !IsNull(v)
	})
}

// Points returns the non null cells in row-major order.
func (vm *VertexMap) Points() []r3.Vector {
	return lo.Filter(vm.Data, func(v r3.Vector, _ int) bool {
		return !IsNull(v)
	})
}

// PointsAndIndices returns the non null cells along with their flat cell index.
func (vm *VertexMap) PointsAndIndices() ([]r3.Vector, []int) {
	indices := lo.FilterMap(vm.Data, func(v r3.Vector, i int) (int, bool) {
		return i, !IsNull(v)
	})
	points := lo.Map(indices, func(i, _ int) r3.Vector {
		return vm.Data[i]
	})
	return points, indices
}

// Clone returns a deep copy.
func (vm *VertexMap) Clone() *VertexMap {
	return &VertexMap{Height: vm.Height, Width: vm.Width, Data: append([]r3.Vector(nil), vm.Data...)}
}
