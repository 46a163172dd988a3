package projection

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestMaskingDropsNullCells(t *testing.T) {
	vm := NewVertexMap(2, 3)
	test.That(t, vm.Validate(), test.ShouldBeNil)
	vm.Set(0, 1, r3.Vector{X: 1, Y: 2, Z: 3})
	vm.Set(1, 2, r3.Vector{X: -1})
	vm.Set(1, 0, r3.Vector{Z: 1e-9})

	test.That(t, vm.Mask(), test.ShouldResemble, []bool{false, true, false, true, false, true})

	points := vm.Points()
	test.That(t, points, test.ShouldResemble, []r3.Vector{{X: 1, Y: 2, Z: 3}, {Z: 1e-9}, {X: -1}})
	for _, p := range points {
		test.That(t, IsNull(p), test.ShouldBeFalse)
	}

	points, indices := vm.PointsAndIndices()
	test.That(t, indices, test.ShouldResemble, []int{1, 3, 5})
	test.That(t, points, test.ShouldHaveLength, 3)
	test.That(t, points[2], test.ShouldResemble, r3.Vector{X: -1})

	empty := NewVertexMap(4, 4)
	test.That(t, empty.Points(), test.ShouldBeEmpty)
}

func TestVertexMapValidate(t *testing.T) {
	vm := &VertexMap{Height: 2, Width: 2, Data: make([]r3.Vector, 3)}
	test.That(t, vm.Validate(), test.ShouldNotBeNil)
	vm = &VertexMap{Height: 0, Width: 2}
	test.That(t, vm.Validate(), test.ShouldNotBeNil)

	vm = NewVertexMap(1, 2)
	clone := vm.Clone()
	clone.Set(0, 0, r3.Vector{X: 1})
	test.That(t, IsNull(vm.At(0, 0)), test.ShouldBeTrue)
}

func TestSphericalConfig(t *testing.T) {
	conf := DefaultSphericalConfig()
	test.That(t, conf.Validate("projector"), test.ShouldBeNil)

	conf.UpFOV = -30
	err := conf.Validate("projector")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "up_fov")

	_, err = NewSphericalProjector(SphericalConfig{Width: 10, UpFOV: 1, DownFOV: -1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "height")
}

func TestSphericalPixel(t *testing.T) {
	sp, err := NewSphericalProjector(DefaultSphericalConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sp.Height(), test.ShouldEqual, 64)
	test.That(t, sp.Width(), test.ShouldEqual, 1024)

	row, col, ok := sp.Pixel(r3.Vector{X: 10})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, col, test.ShouldEqual, 512)
	test.That(t, row, test.ShouldEqual, 6)

	// left of the sensor is a quarter turn counter clockwise, so a quarter of the columns earlier
	_, col, ok = sp.Pixel(r3.Vector{Y: 10})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, col, test.ShouldEqual, 256)

	// far above and below the field of view clamp to the border rows
	row, _, ok = sp.Pixel(r3.Vector{X: 1, Z: 10})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, row, test.ShouldEqual, 0)
	row, _, ok = sp.Pixel(r3.Vector{X: 1, Z: -10})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, row, test.ShouldEqual, 63)

	_, _, ok = sp.Pixel(r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
	_, _, ok = sp.Pixel(r3.Vector{X: math.NaN()})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestBuildProjectionMap(t *testing.T) {
	sp, err := NewSphericalProjector(DefaultSphericalConfig())
	test.That(t, err, test.ShouldBeNil)

	far := r3.Vector{X: 20}
	near := r3.Vector{X: 10}
	other := r3.Vector{Y: -5, Z: -1}
	vm := sp.BuildProjectionMap([]r3.Vector{far, {}, near, other, far})
	test.That(t, vm.Validate(), test.ShouldBeNil)

	points := sp.ProjectionToPoints(vm)
	test.That(t, points, test.ShouldHaveLength, 2)
	row, col, _ := sp.Pixel(near)
	test.That(t, vm.At(row, col), test.ShouldResemble, near)
	row, col, _ = sp.Pixel(other)
	test.That(t, vm.At(row, col), test.ShouldResemble, other)

	// equal range keeps the earliest point
	a := r3.Vector{X: 10, Y: 0.001}
	b := r3.Vector{X: 10, Y: -0.001}
	rowA, colA, _ := sp.Pixel(a)
	rowB, colB, _ := sp.Pixel(b)
	if rowA == rowB && colA == colB {
		vm = sp.BuildProjectionMap([]r3.Vector{a, b})
		test.That(t, vm.At(rowA, colA), test.ShouldResemble, a)
	}
}

func TestEstimateNormalMap(t *testing.T) {
	// a 3x4 patch of the wall x=5, columns moving towards -y and rows moving down
	vm := NewVertexMap(3, 4)
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			vm.Set(row, col, r3.Vector{X: 5, Y: 1 - 0.1*float64(col), Z: 1 - 0.1*float64(row)})
		}
	}
	// a hole leaves its border neighbors without a usable neighbor along one axis
	vm.Set(1, 1, r3.Vector{})

	normals := EstimateNormalMap(vm)
	test.That(t, normals.Height, test.ShouldEqual, 3)
	test.That(t, normals.Width, test.ShouldEqual, 4)
	defined := 0
	for i, p := range vm.Data {
		n := normals.Data[i]
		if IsNull(p) || IsNull(n) {
			test.That(t, IsNull(n), test.ShouldBeTrue)
			continue
		}
		defined++
		test.That(t, n.X, test.ShouldAlmostEqual, -1)
		test.That(t, n.Y, test.ShouldAlmostEqual, 0)
		test.That(t, n.Z, test.ShouldAlmostEqual, 0)
	}
	test.That(t, defined, test.ShouldEqual, 8)
	test.That(t, IsNull(normals.At(0, 1)), test.ShouldBeTrue)
	test.That(t, IsNull(normals.At(1, 0)), test.ShouldBeTrue)
	test.That(t, IsNull(normals.At(2, 1)), test.ShouldBeTrue)

	lonely := NewVertexMap(2, 2)
	lonely.Set(0, 0, r3.Vector{X: 1})
	test.That(t, IsNull(EstimateNormalMap(lonely).At(0, 0)), test.ShouldBeTrue)
}
