package projection

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/odometry/utils"
)

// A Projector maps points onto a fixed size grid and back.
type Projector interface {
	Height() int
	Width() int
	// Pixel returns the cell a point falls in. ok is false for points that cannot be projected.
	Pixel(p r3.Vector) (row, col int, ok bool)
	// BuildProjectionMap renders points into a vertex map. When several points land in the same
	// cell the closest one wins.
	BuildProjectionMap(points []r3.Vector) *VertexMap
	// ProjectionToPoints returns the non null points of a vertex map.
	ProjectionToPoints(vm *VertexMap) []r3.Vector
}

// SphericalConfig describes a spinning LiDAR range image.
type SphericalConfig struct {
	Height  int     `json:"height"`
	Width   int     `json:"width"`
	UpFOV   float64 `json:"up_fov"`
	DownFOV float64 `json:"down_fov"`
}

// DefaultSphericalConfig returns the configuration of a 64 beam sensor.
func DefaultSphericalConfig() SphericalConfig {
	return SphericalConfig{Height: 64, Width: 1024, UpFOV: 3, DownFOV: -25}
}

// Validate ensures all parts of the config are valid.
func (conf *SphericalConfig) Validate(path string) error {
	if conf.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height")
	}
	if conf.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width")
	}
	if conf.UpFOV <= conf.DownFOV {
		return utils.NewConfigValidationError(path,
			errors.Errorf("up_fov (%v) must be greater than down_fov (%v)", conf.UpFOV, conf.DownFOV))
	}
	return nil
}

// SphericalProjector projects points by azimuth onto columns and by elevation onto rows.
// Column 0 faces backwards and columns advance clockwise seen from above. Row 0 holds the
// highest elevation. Elevations outside the field of view are clamped to the border rows.
type SphericalProjector struct {
	height  int
	width   int
	upFOV   float64
	downFOV float64
}

// NewSphericalProjector returns a projector for the given configuration.
func NewSphericalProjector(conf SphericalConfig) (*SphericalProjector, error) {
	if err := conf.Validate("projector"); err != nil {
		return nil, err
	}
	return &SphericalProjector{
		height:  conf.Height,
		width:   conf.Width,
		upFOV:   utils.DegToRad(conf.UpFOV),
		downFOV: utils.DegToRad(conf.DownFOV),
	}, nil
}

// Height returns the number of rows.
func (sp *SphericalProjector) Height() int {
	return sp.height
}

// Width returns the number of columns.
func (sp *SphericalProjector) Width() int {
	return sp.width
}

// Pixel returns the cell a point falls in.
func (sp *SphericalProjector) Pixel(p r3.Vector) (int, int, bool) {
	rng := p.Norm()
	if rng == 0 || math.IsNaN(rng) || math.IsInf(rng, 0) {
		return 0, 0, false
	}
	yaw := math.Atan2(p.Y, p.X)
	pitch := math.Asin(math.Max(-1, math.Min(1, p.Z/rng)))

	u := 0.5 * (1 - yaw/math.Pi)
	v := 1 - (pitch-sp.downFOV)/(sp.upFOV-sp.downFOV)

	col := utils.ClampInt(int(math.Floor(u*float64(sp.width))), 0, sp.width-1)
	row := utils.ClampInt(int(math.Floor(v*float64(sp.height))), 0, sp.height-1)
	return row, col, true
}

// BuildProjectionMap renders points into a vertex map. Collisions keep the closest point and,
// on equal range, the earliest one.
func (sp *SphericalProjector) BuildProjectionMap(points []r3.Vector) *VertexMap {
	vm := NewVertexMap(sp.height, sp.width)
	ranges := make([]float64, len(vm.Data))
	for i := range ranges {
		ranges[i] = math.Inf(1)
	}
	for _, p := range points {
		if IsNull(p) {
			continue
		}
		row, col, ok := sp.Pixel(p)
		if !ok {
			continue
		}
		idx := row*sp.width + col
		if rng := p.Norm(); rng < ranges[idx] {
			ranges[idx] = rng
			vm.Data[idx] = p
		}
	}
	return vm
}

// ProjectionToPoints returns the non null points of a vertex map.
func (sp *SphericalProjector) ProjectionToPoints(vm *VertexMap) []r3.Vector {
	return vm.Points()
}
