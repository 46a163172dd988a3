package initialization

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// ModeConstantVelocity predicts that the sensor keeps its last motion.
const ModeConstantVelocity = "constant_velocity"

func init() {
	Register(ModeConstantVelocity, Registration{
		Constructor: func(attributes utils.AttributeMap, deps Dependencies) (Initialization, error) {
			conf := DefaultConstantVelocityConfig()
			if err := utils.DecodeAttributes(attributes, &conf); err != nil {
				return nil, err
			}
			return NewConstantVelocity(conf, deps.Pose, deps.Logger)
		},
	})
}

// ConstantVelocityConfig configures the constant velocity model.
type ConstantVelocityConfig struct {
	// Window is the number of last motions averaged, in pose parameter space.
	Window int `json:"window"`
}

// DefaultConstantVelocityConfig repeats the last motion.
func DefaultConstantVelocityConfig() ConstantVelocityConfig {
	return ConstantVelocityConfig{Window: 1}
}

// Validate ensures all parts of the config are valid.
func (conf *ConstantVelocityConfig) Validate(path string) error {
	if conf.Window <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "window")
	}
	return nil
}

// ConstantVelocity predicts the next relative pose as the mean of the last registered ones.
type ConstantVelocity struct {
	conf   ConstantVelocityConfig
	pose   spatialmath.PoseRepresentation
	logger logging.Logger

	history [][]float64
}

// NewConstantVelocity returns a constant velocity model.
func NewConstantVelocity(
	conf ConstantVelocityConfig,
	pose spatialmath.PoseRepresentation,
	logger logging.Logger,
) (*ConstantVelocity, error) {
	if err := conf.Validate(ModeConstantVelocity); err != nil {
		return nil, err
	}
	if pose == nil {
		return nil, errors.New("constant velocity initialization requires a pose representation")
	}
	return &ConstantVelocity{conf: conf, pose: pose, logger: logger}, nil
}

// Init forgets the registered motions.
func (cv *ConstantVelocity) Init() {
	cv.history = nil
}

// NextInitialPose returns identity until a motion is registered.
func (cv *ConstantVelocity) NextInitialPose(map[string]interface{}) (spatialmath.Transform, error) {
	if len(cv.history) == 0 {
		return spatialmath.NewIdentityTransform(), nil
	}
	if len(cv.history) == 1 {
		return cv.pose.BuildMatrix(cv.history[0]), nil
	}
	mean := make([]float64, cv.pose.NumParams())
	for _, params := range cv.history {
		floats.Add(mean, params)
	}
	floats.Scale(1/float64(len(cv.history)), mean)
	return cv.pose.BuildMatrix(mean), nil
}

// RegisterMotion records a relative pose.
func (cv *ConstantVelocity) RegisterMotion(relativePose spatialmath.Transform, _ map[string]interface{}) error {
	if !relativePose.IsFinite() {
		return errors.New("cannot register a non finite motion")
	}
	cv.history = append(cv.history, cv.pose.FromMatrix(relativePose))
	if extra := len(cv.history) - cv.conf.Window; extra > 0 {
		cv.history = cv.history[extra:]
	}
	return nil
}
