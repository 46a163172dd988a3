package odometry

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"go.viam.com/odometry/odometry/localmap"
	"go.viam.com/odometry/projection"
	"go.viam.com/odometry/utils"
)

// Frame is the payload of one LiDAR sweep, keyed by data name.
type Frame map[string]interface{}

// frameInput is a frame read into its canonical form.
type frameInput struct {
	vertexMap *projection.VertexMap
	normalMap *projection.NormalMap
	// points are the non null cells of vertexMap; they are what gets registered.
	points []r3.Vector
	// rawPoints are the points as given, before projection. Nil for grid inputs.
	rawPoints []r3.Vector
}

func (in *frameInput) frameData() *localmap.FrameData {
	return &localmap.FrameData{
		VertexMap: in.vertexMap,
		Points:    in.rawPoints,
		NormalMap: in.normalMap,
		Mask:      in.vertexMap.Mask(),
	}
}

// readInput interprets the frame data stored under dataKey. Point lists are projected into a
// vertex map; grids are taken as vertex maps directly and must match the projector size.
func readInput(frame Frame, dataKey, normalMapKey string, projector projection.Projector) (*frameInput, error) {
	value, ok := frame[dataKey]
	if !ok || value == nil {
		return nil, newInputError(dataKey, errors.New("missing from frame"))
	}

	var (
		vm        *projection.VertexMap
		rawPoints []r3.Vector
	)
	switch v := value.(type) {
	case []r3.Vector:
		rawPoints = v
	case *mat.Dense:
		points, err := matrixPoints(v)
		if err != nil {
			return nil, newInputError(dataKey, err)
		}
		rawPoints = points
	case *projection.VertexMap:
		if err := v.Validate(); err != nil {
			return nil, newInputError(dataKey, err)
		}
		vm = v
	case tensor.Tensor:
		points, grid, err := tensorInput(v)
		if err != nil {
			return nil, newInputError(dataKey, err)
		}
		vm, rawPoints = grid, points
	default:
		return nil, newInputError(dataKey, errors.Errorf("unsupported data type %s", utils.TypeStr(value)))
	}
	if vm == nil {
		vm = projector.BuildProjectionMap(rawPoints)
	} else if vm.Height != projector.Height() || vm.Width != projector.Width() {
		return nil, newInputError(dataKey, errors.Errorf(
			"vertex map is %dx%d, projector is %dx%d", vm.Height, vm.Width, projector.Height(), projector.Width()))
	}

	in := &frameInput{vertexMap: vm, points: vm.Points(), rawPoints: rawPoints}
	if normalMapKey == "" {
		return in, nil
	}
	if raw, ok := frame[normalMapKey]; ok && raw != nil {
		nm, err := readNormalMap(raw)
		if err != nil {
			return nil, newInputError(normalMapKey, err)
		}
		if nm.Height != vm.Height || nm.Width != vm.Width {
			return nil, newInputError(normalMapKey, errors.Errorf(
				"normal map is %dx%d, vertex map is %dx%d", nm.Height, nm.Width, vm.Height, vm.Width))
		}
		in.normalMap = nm
	}
	return in, nil
}

func readNormalMap(value interface{}) (*projection.NormalMap, error) {
	switch v := value.(type) {
	case *projection.VertexMap:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return v, nil
	case tensor.Tensor:
		_, grid, err := tensorInput(v)
		if err != nil {
			return nil, err
		}
		if grid == nil {
			return nil, errors.Errorf("expected a 3xHxW normal map, got shape %v", v.Shape())
		}
		return grid, nil
	default:
		return nil, errors.Errorf("unsupported normal map type %s", utils.TypeStr(value))
	}
}

func matrixPoints(m *mat.Dense) ([]r3.Vector, error) {
	rows, cols := m.Dims()
	if cols != 3 {
		return nil, errors.Errorf("expected an Nx3 matrix, got %dx%d", rows, cols)
	}
	points := make([]r3.Vector, rows)
	for i := range points {
		points[i] = r3.Vector{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
	}
	return points, nil
}

// tensorInput reads an Nx3 point tensor, or a 3xHxW (optionally 1x3xHxW) channel first grid.
// Exactly one of the two results is set.
func tensorInput(t tensor.Tensor) ([]r3.Vector, *projection.VertexMap, error) {
	shape := t.Shape()
	values, err := tensorValues(t)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case len(shape) == 2 && shape[1] == 3:
		points := make([]r3.Vector, shape[0])
		for i := range points {
			points[i] = r3.Vector{X: values[3*i], Y: values[3*i+1], Z: values[3*i+2]}
		}
		return points, nil, nil
	case len(shape) == 4 && shape[0] == 1 && shape[1] == 3:
		return nil, channelFirstGrid(values, shape[2], shape[3]), nil
	case len(shape) == 4:
		return nil, nil, errors.Errorf("unexpected batched data of shape %v, expected 1x3xHxW", shape)
	case len(shape) == 3 && shape[0] == 3:
		return nil, channelFirstGrid(values, shape[1], shape[2]), nil
	default:
		return nil, nil, errors.Errorf("unexpected data of shape %v, expected Nx3, 3xHxW or 1x3xHxW", shape)
	}
}

func channelFirstGrid(values []float64, height, width int) *projection.VertexMap {
	vm := projection.NewVertexMap(height, width)
	plane := height * width
	for i := range vm.Data {
		vm.Data[i] = r3.Vector{X: values[i], Y: values[plane+i], Z: values[2*plane+i]}
	}
	return vm
}

// tensorValues returns the row-major float64 values of a float32 or float64 tensor.
func tensorValues(t tensor.Tensor) ([]float64, error) {
	if d, ok := t.(*tensor.Dense); ok && d.IsMaterializable() {
		t = d.Materialize()
	}
	switch data := t.Data().(type) {
	case []float64:
		return data, nil
	case []float32:
		values := make([]float64, len(data))
		for i, v := range data {
			values[i] = float64(v)
		}
		return values, nil
	default:
		return nil, errors.Errorf("unsupported tensor data type %s", t.Dtype())
	}
}
