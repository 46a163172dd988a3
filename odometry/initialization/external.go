package initialization

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// ModeExternal reads a prior relative pose from the frame, for instance from wheel odometry or
// an IMU, and falls back to constant velocity when the frame has none.
const ModeExternal = "external"

// DefaultPriorKey is the frame key holding the prior relative pose.
const DefaultPriorKey = "prior_relative_pose"

func init() {
	Register(ModeExternal, Registration{
		Constructor: func(attributes utils.AttributeMap, deps Dependencies) (Initialization, error) {
			conf := DefaultExternalConfig()
			if err := utils.DecodeAttributes(attributes, &conf); err != nil {
				return nil, err
			}
			if err := conf.Validate(ModeExternal); err != nil {
				return nil, err
			}
			fallback, err := NewConstantVelocity(ConstantVelocityConfig{Window: conf.Window}, deps.Pose, deps.Logger)
			if err != nil {
				return nil, err
			}
			return &external{conf: conf, fallback: fallback}, nil
		},
	})
}

// ExternalConfig configures the external prior model.
type ExternalConfig struct {
	PriorKey string `json:"prior_key"`
	// Window configures the constant velocity fallback.
	Window int `json:"window"`
}

// DefaultExternalConfig returns the default external prior configuration.
func DefaultExternalConfig() ExternalConfig {
	return ExternalConfig{PriorKey: DefaultPriorKey, Window: 1}
}

// Validate ensures all parts of the config are valid.
func (conf *ExternalConfig) Validate(path string) error {
	if conf.PriorKey == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "prior_key")
	}
	if conf.Window <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "window")
	}
	return nil
}

type external struct {
	conf     ExternalConfig
	fallback *ConstantVelocity
}

func (e *external) Init() {
	e.fallback.Init()
}

func (e *external) NextInitialPose(frame map[string]interface{}) (spatialmath.Transform, error) {
	prior, ok := frame[e.conf.PriorKey]
	if !ok || prior == nil {
		return e.fallback.NextInitialPose(frame)
	}

	var tf spatialmath.Transform
	switch p := prior.(type) {
	case spatialmath.Transform:
		tf = p
	case *spatialmath.Transform:
		tf = *p
	case mat.Matrix:
		var err error
		if tf, err = spatialmath.NewTransformFromMatrix(p); err != nil {
			return spatialmath.Transform{}, errors.Wrapf(err, "invalid %q", e.conf.PriorKey)
		}
	default:
		return spatialmath.Transform{}, errors.Wrapf(
			utils.NewUnexpectedTypeError(spatialmath.Transform{}, prior), "invalid %q", e.conf.PriorKey)
	}
	if !tf.IsFinite() {
		return spatialmath.Transform{}, errors.Errorf("%q is not finite", e.conf.PriorKey)
	}
	return tf, nil
}

func (e *external) RegisterMotion(relativePose spatialmath.Transform, frame map[string]interface{}) error {
	return e.fallback.RegisterMotion(relativePose, frame)
}
