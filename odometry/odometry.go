// Package odometry estimates the motion of a LiDAR from consecutive sweeps by registering every
// new frame against a local map of the previous ones.
package odometry

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gorgonia.org/tensor"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// Algorithm is a frame sequential odometry.
type Algorithm interface {
	// Init resets the algorithm for a new sequence.
	Init()
	// ProcessNextFrame registers the next frame of the sequence.
	ProcessNextFrame(ctx context.Context, frame Frame) error
	// RelativePoses returns, for every processed frame, its pose in the previous frame.
	RelativePoses() []spatialmath.Transform
	// StackedRelativePoses returns the relative poses as an Nx4x4 tensor, nil before the first
	// frame.
	StackedRelativePoses() *tensor.Dense
}

// A Constructor builds an odometry algorithm from a validated configuration.
type Constructor func(conf *Config, logger logging.Logger) (Algorithm, error)

// Registration stores an odometry constructor (mandatory).
type Registration struct {
	Constructor Constructor
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// RegisterAlgorithm registers an odometry algorithm. It panics when the name is taken or the
// constructor is nil.
func RegisterAlgorithm(name string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[name]; old {
		panic(errors.Errorf("trying to register two odometry algorithms with the same name: %s", name))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for odometry algorithm: %s", name))
	}
	registry[name] = reg
}

// Algorithms returns the registered algorithm names, sorted.
func Algorithms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// New validates conf and builds the algorithm it selects.
func New(conf *Config, logger logging.Logger) (Algorithm, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	registryMu.RLock()
	reg, ok := registry[conf.Algorithm]
	registryMu.RUnlock()
	if !ok {
		return nil, newConfigError(utils.NewUnknownModeError("odometry", conf.Algorithm, Algorithms()))
	}
	if logger == nil {
		logger = logging.NewLogger("odometry")
	}
	return reg.Constructor(conf, logger)
}

// StackPoses returns the transforms as an Nx4x4 tensor, or nil when there are none.
func StackPoses(poses []spatialmath.Transform) *tensor.Dense {
	if len(poses) == 0 {
		return nil
	}
	backing := make([]float64, 0, 16*len(poses))
	for _, pose := range poses {
		backing = append(backing, pose.Matrix().RawMatrix().Data...)
	}
	return tensor.New(tensor.WithShape(len(poses), 4, 4), tensor.WithBacking(backing))
}

// Trajectory chains relative poses into poses in the frame of the first one.
func Trajectory(relativePoses []spatialmath.Transform) []spatialmath.Transform {
	trajectory := make([]spatialmath.Transform, len(relativePoses))
	current := spatialmath.NewIdentityTransform()
	for i, rpose := range relativePoses {
		current = spatialmath.Compose(current, rpose)
		trajectory[i] = current
	}
	return trajectory
}
