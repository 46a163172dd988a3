package odometry

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/odometry/odometry/alignment"
	"go.viam.com/odometry/odometry/initialization"
	"go.viam.com/odometry/odometry/localmap"
	"go.viam.com/odometry/projection"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// DeviceCPU is the only supported compute device.
const DeviceCPU = "cpu"

// DefaultNormalMapKey is the frame key of optional precomputed normals.
const DefaultNormalMapKey = "normal_map"

// Config configures an odometry algorithm.
type Config struct {
	Algorithm string `json:"algorithm"`
	Device    string `json:"device"`
	// Pose names the pose parameterization used by the solver.
	Pose             string `json:"pose"`
	MaxNumAlignments int    `json:"max_num_alignments"`
	// ThresholdDeltaPose stops the registration of a frame once the norm of the pose increment
	// falls below it.
	ThresholdDeltaPose float64 `json:"threshold_delta_pose"`
	// ThresholdTrans and ThresholdRot (degrees) bound the motion accumulated before the local
	// map geometry is refreshed.
	ThresholdTrans float64 `json:"threshold_trans"`
	ThresholdRot   float64 `json:"threshold_rot"`
	// Sigma is the robust scale handed to the alignment.
	Sigma        float64 `json:"sigma"`
	DataKey      string  `json:"data_key"`
	NormalMapKey string  `json:"normal_map_key"`

	Projector      projection.SphericalConfig `json:"projector"`
	Initialization utils.ModeConfig           `json:"initialization"`
	LocalMap       utils.ModeConfig           `json:"local_map"`
	Alignment      utils.ModeConfig           `json:"alignment"`
}

// DefaultConfig returns the configuration of a point to plane frame to model ICP.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:          AlgorithmICPFrameToModel,
		Device:             DeviceCPU,
		Pose:               spatialmath.EulerPoseName,
		MaxNumAlignments:   100,
		ThresholdDeltaPose: 1e-4,
		ThresholdTrans:     0.1,
		ThresholdRot:       0.3,
		Sigma:              0.1,
		DataKey:            "vertex_map",
		NormalMapKey:       DefaultNormalMapKey,
		Projector:          projection.DefaultSphericalConfig(),
		Initialization:     utils.ModeConfig{Mode: initialization.ModeConstantVelocity},
		LocalMap:           utils.ModeConfig{Mode: localmap.ModeKDTree},
		Alignment:          utils.ModeConfig{Mode: alignment.ModePointToPlaneGaussNewton},
	}
}

// Validate ensures all parts of the config are valid. Every problem is reported.
func (conf *Config) Validate() error {
	var errs error
	if conf.Algorithm == "" {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("odometry", "algorithm"))
	}
	if conf.Device != DeviceCPU {
		errs = multierr.Append(errs, errors.Errorf("unsupported device %q, only %q is available", conf.Device, DeviceCPU))
	}
	if _, err := spatialmath.RepresentationByName(conf.Pose); err != nil {
		errs = multierr.Append(errs, err)
	}
	if conf.MaxNumAlignments <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("odometry", "max_num_alignments"))
	}
	if conf.ThresholdDeltaPose <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("odometry", "threshold_delta_pose"))
	}
	if conf.ThresholdTrans < 0 || conf.ThresholdRot < 0 {
		errs = multierr.Append(errs, errors.New("threshold_trans and threshold_rot cannot be negative"))
	}
	if conf.Sigma <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("odometry", "sigma"))
	}
	if conf.DataKey == "" {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("odometry", "data_key"))
	}
	errs = multierr.Append(errs, conf.Projector.Validate("projector"))
	for _, strategy := range []struct {
		field string
		conf  utils.ModeConfig
	}{
		{"initialization", conf.Initialization},
		{"local_map", conf.LocalMap},
		{"alignment", conf.Alignment},
	} {
		if strategy.conf.Mode == "" {
			errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(strategy.field, "mode"))
		}
	}
	return newConfigError(errs)
}

// ReadConfig decodes a JSON configuration on top of the defaults and validates it.
func ReadConfig(r io.Reader) (*Config, error) {
	conf := DefaultConfig()
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(conf); err != nil {
		return nil, newConfigError(errors.Wrap(err, "cannot decode configuration"))
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// LoadConfig reads a JSON configuration file.
func LoadConfig(path string) (conf *Config, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ReadConfig(f)
}
