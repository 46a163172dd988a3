// Package alignment estimates the rigid motion that best aligns matched point pairs.
package alignment

import (
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/optimization"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// Result is the outcome of an alignment. Params is the pose increment that moves the target
// points onto the reference.
type Result = optimization.Result

// Alignment computes a pose increment from correspondences.
type Alignment interface {
	// Align returns the pose parameters moving target onto reference. initial may be nil to
	// start from the zero motion; mask, when not nil, selects the correspondences used.
	Align(reference, target, normals []r3.Vector, initial []float64, mask []bool) (Result, error)
}

// Dependencies are the shared components an alignment may need.
type Dependencies struct {
	Pose spatialmath.PoseRepresentation
	// Sigma is the robust scale used when the alignment does not set its own.
	Sigma  float64
	Logger logging.Logger
}

// A Constructor builds an alignment from its attributes.
type Constructor func(attributes utils.AttributeMap, deps Dependencies) (Alignment, error)

// Registration stores an alignment constructor (mandatory).
type Registration struct {
	Constructor Constructor
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// Register registers an alignment mode. It panics when the mode is taken or the constructor is
// nil.
func Register(mode string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[mode]; old {
		panic(errors.Errorf("trying to register two alignments with the same mode: %s", mode))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for alignment: %s", mode))
	}
	registry[mode] = reg
}

// Modes returns the registered modes, sorted.
func Modes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	modes := lo.Keys(registry)
	sort.Strings(modes)
	return modes
}

// New builds the alignment selected by conf.
func New(conf utils.ModeConfig, deps Dependencies) (Alignment, error) {
	registryMu.RLock()
	reg, ok := registry[conf.Mode]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownModeError("alignment", conf.Mode, Modes())
	}
	if deps.Pose == nil {
		deps.Pose = spatialmath.NewEulerPose()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewBlankLogger("alignment")
	}
	return reg.Constructor(conf.Attributes, deps)
}

// applyMask keeps the correspondences selected by mask.
func applyMask(reference, target, normals []r3.Vector, mask []bool) ([]r3.Vector, []r3.Vector, []r3.Vector, error) {
	if len(reference) != len(target) || len(reference) != len(normals) {
		return nil, nil, nil, errors.Errorf("correspondence arrays differ in length: %d reference, %d target, %d normals",
			len(reference), len(target), len(normals))
	}
	if mask == nil {
		return reference, target, normals, nil
	}
	if len(mask) != len(reference) {
		return nil, nil, nil, errors.Errorf("mask has %d entries for %d correspondences", len(mask), len(reference))
	}
	keep := func(_ r3.Vector, i int) bool { return mask[i] }
	return lo.Filter(reference, keep), lo.Filter(target, keep), lo.Filter(normals, keep), nil
}
