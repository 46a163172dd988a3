package alignment

import (
	"github.com/golang/geo/r3"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/optimization"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// ModePointToPlaneGaussNewton minimizes robust point to plane distances with Gauss-Newton.
const ModePointToPlaneGaussNewton = "point_to_plane_gauss_newton"

func init() {
	Register(ModePointToPlaneGaussNewton, Registration{
		Constructor: func(attributes utils.AttributeMap, deps Dependencies) (Alignment, error) {
			conf := DefaultPointToPlaneConfig()
			if err := utils.DecodeAttributes(attributes, &conf); err != nil {
				return nil, err
			}
			if conf.Sigma == 0 {
				conf.Sigma = deps.Sigma
			}
			return NewPointToPlane(conf, deps.Pose, deps.Logger)
		},
	})
}

// PointToPlaneConfig configures the point to plane alignment.
type PointToPlaneConfig struct {
	NumGNIters int                 `json:"num_gn_iters"`
	Scheme     optimization.Scheme `json:"scheme"`
	// Sigma is the robust scale. Zero inherits the odometry sigma.
	Sigma           float64 `json:"sigma,omitempty"`
	MaxDampingTries int     `json:"max_damping_tries"`
}

// DefaultPointToPlaneConfig runs one Huber weighted step per alignment.
func DefaultPointToPlaneConfig() PointToPlaneConfig {
	gn := optimization.DefaultGaussNewtonConfig()
	return PointToPlaneConfig{
		NumGNIters:      gn.MaxIters,
		Scheme:          gn.Scheme,
		MaxDampingTries: gn.MaxDampingTries,
	}
}

// PointToPlane aligns correspondences by minimizing n·(T·p - q) over the pose parameters.
type PointToPlane struct {
	conf PointToPlaneConfig
	pose spatialmath.PoseRepresentation
	gn   *optimization.GaussNewton
}

// NewPointToPlane returns a point to plane alignment.
func NewPointToPlane(conf PointToPlaneConfig, pose spatialmath.PoseRepresentation, logger logging.Logger) (*PointToPlane, error) {
	if pose == nil {
		pose = spatialmath.NewEulerPose()
	}
	if logger == nil {
		logger = logging.NewBlankLogger(ModePointToPlaneGaussNewton)
	}
	gn, err := optimization.NewGaussNewton(optimization.GaussNewtonConfig{
		MaxIters:        conf.NumGNIters,
		Scheme:          conf.Scheme,
		Sigma:           conf.Sigma,
		MaxDampingTries: conf.MaxDampingTries,
	}, logger)
	if err != nil {
		return nil, utils.NewConfigValidationError(ModePointToPlaneGaussNewton, err)
	}
	return &PointToPlane{conf: conf, pose: pose, gn: gn}, nil
}

// Config returns the alignment configuration.
func (pp *PointToPlane) Config() PointToPlaneConfig {
	return pp.conf
}

// Align runs the configured Gauss-Newton steps.
func (pp *PointToPlane) Align(reference, target, normals []r3.Vector, initial []float64, mask []bool) (Result, error) {
	reference, target, normals, err := applyMask(reference, target, normals, mask)
	if err != nil {
		return Result{}, err
	}
	cost, err := optimization.NewPointToPlaneCost(pp.pose, reference, target, normals)
	if err != nil {
		return Result{}, err
	}
	return pp.gn.Compute(cost, initial)
}
