// Package initialization provides the motion models that seed the registration of a new frame.
package initialization

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// Initialization predicts the pose of the next frame in the last registered frame.
type Initialization interface {
	// Init forgets every registered motion.
	Init()
	// NextInitialPose returns the initial estimate for the given frame.
	NextInitialPose(frame map[string]interface{}) (spatialmath.Transform, error)
	// RegisterMotion records the relative pose estimated for a frame.
	RegisterMotion(relativePose spatialmath.Transform, frame map[string]interface{}) error
}

// Dependencies are the shared components a motion model may need.
type Dependencies struct {
	Pose   spatialmath.PoseRepresentation
	Logger logging.Logger
}

// A Constructor builds a motion model from its attributes.
type Constructor func(attributes utils.AttributeMap, deps Dependencies) (Initialization, error)

// Registration stores a motion model constructor (mandatory).
type Registration struct {
	Constructor Constructor
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// Register registers an initialization mode. It panics when the mode is taken or the
// constructor is nil.
func Register(mode string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[mode]; old {
		panic(errors.Errorf("trying to register two initializations with the same mode: %s", mode))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for initialization: %s", mode))
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

// New builds the motion model selected by conf.
func New(conf utils.ModeConfig, deps Dependencies) (Initialization, error) {
	registryMu.RLock()
	reg, ok := registry[conf.Mode]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownModeError("initialization", conf.Mode, Modes())
	}
	if deps.Pose == nil {
		deps.Pose = spatialmath.NewEulerPose()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewBlankLogger("initialization")
	}
	return reg.Constructor(conf.Attributes, deps)
}

// ModeNone always predicts no motion.
const ModeNone = "none"

func init() {
	Register(ModeNone, Registration{
		Constructor: func(attributes utils.AttributeMap, deps Dependencies) (Initialization, error) {
			if len(attributes) != 0 {
				return nil, errors.Errorf("%s initialization takes no attributes, got %v", ModeNone, attributes.Keys())
			}
			return noMotion{}, nil
		},
	})
}

type noMotion struct{}

func (noMotion) Init() {}

func (noMotion) NextInitialPose(map[string]interface{}) (spatialmath.Transform, error) {
	return spatialmath.NewIdentityTransform(), nil
}

func (noMotion) RegisterMotion(spatialmath.Transform, map[string]interface{}) error {
	return nil
}
