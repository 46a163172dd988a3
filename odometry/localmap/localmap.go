// Package localmap holds the model that incoming frames are registered against. A local map is
// anchored in the frame of its last full update and tracks the pose of the last registered frame
// within that anchor.
package localmap

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/pointcloud"
	"go.viam.com/odometry/projection"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// LocalMap is the registration model of the odometry.
type LocalMap interface {
	// Init clears the map and resets the current pose to identity.
	Init()

	// NearestNeighborSearch matches points expressed in the last registered frame against the
	// map. Queries without an acceptable neighbor are dropped; the returned slices are aligned
	// and expressed in the same frame as the queries.
	NearestNeighborSearch(ctx context.Context, queries []r3.Vector) (Correspondences, error)

	// Update moves the current pose by relativePose, the pose of the new frame in the last
	// registered frame. With data, the frame is merged into the map and the map is re-anchored
	// on it. Without data, only the pose is updated.
	Update(ctx context.Context, relativePose spatialmath.Transform, data *FrameData) error

	// CurrentPose is the pose of the last registered frame in the map anchor.
	CurrentPose() spatialmath.Transform

	// Size is the number of points in the map.
	Size() int

	// Cloud returns a copy of the map geometry in its anchor frame. The viewpoint holds the
	// current pose.
	Cloud() *pointcloud.PointCloud
}

// FrameData is what a full update merges into the map.
type FrameData struct {
	// VertexMap is the frame's projection.
	VertexMap *projection.VertexMap
	// Points are the frame's points before projection, when it was given as points. Maps that
	// keep unprojected geometry merge them instead of VertexMap, unless a normal map is set.
	Points []r3.Vector
	// NormalMap optionally provides normals aligned with VertexMap.
	NormalMap *projection.NormalMap
	// Mask optionally restricts the cells of VertexMap that are merged.
	Mask []bool
}

// Correspondences pairs each kept query (Target) with its neighbor in the map (Reference) and
// the neighbor's normal.
type Correspondences struct {
	Reference []r3.Vector
	Normals   []r3.Vector
	Target    []r3.Vector
}

// Len is the number of correspondences.
func (c Correspondences) Len() int {
	return len(c.Target)
}

func (c *Correspondences) add(reference, normal, target r3.Vector) {
	c.Reference = append(c.Reference, reference)
	c.Normals = append(c.Normals, normal)
	c.Target = append(c.Target, target)
}

// Dependencies are the shared components a local map may need.
type Dependencies struct {
	Projector projection.Projector
	Logger    logging.Logger
}

// A Constructor builds a local map from its attributes.
type Constructor func(attributes utils.AttributeMap, deps Dependencies) (LocalMap, error)

// Registration stores a local map constructor (mandatory).
type Registration struct {
	Constructor Constructor
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// Register registers a local map mode. It panics when the mode is taken or the constructor is
// nil.
func Register(mode string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[mode]; old {
		panic(errors.Errorf("trying to register two local maps with the same mode: %s", mode))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for local map: %s", mode))
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

// New builds the local map selected by conf.
func New(conf utils.ModeConfig, deps Dependencies) (LocalMap, error) {
	registryMu.RLock()
	reg, ok := registry[conf.Mode]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownModeError("local map", conf.Mode, Modes())
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewBlankLogger("localmap")
	}
	return reg.Constructor(conf.Attributes, deps)
}

// frameCloud extracts the points of a frame, with their normals when the frame carries a normal
// map. Raw points are preferred over the vertex map so that points sharing a pixel are all kept.
// Masked cells, null points and cells with a null normal are dropped.
func frameCloud(data *FrameData) (*pointcloud.PointCloud, error) {
	vm := data.VertexMap
	if data.NormalMap == nil && (data.Points != nil || vm == nil) {
		if vm == nil && data.Mask != nil {
			return nil, errors.New("a mask requires a vertex map")
		}
		return (&pointcloud.PointCloud{Points: data.Points}).NonNull(), nil
	}
	if vm == nil {
		return nil, errors.New("a normal map requires a vertex map")
	}
	if err := vm.Validate(); err != nil {
		return nil, err
	}
	if data.Mask != nil && len(data.Mask) != len(vm.Data) {
		return nil, errors.Errorf("mask has %d cells, vertex map has %d", len(data.Mask), len(vm.Data))
	}
	nm := data.NormalMap
	if nm != nil && (nm.Height != vm.Height || nm.Width != vm.Width) {
		return nil, errors.Errorf("normal map is %dx%d, vertex map is %dx%d", nm.Height, nm.Width, vm.Height, vm.Width)
	}

	points, indices := vm.PointsAndIndices()
	cloud := &pointcloud.PointCloud{Points: make([]r3.Vector, 0, len(points))}
	if nm != nil {
		cloud.Normals = make([]r3.Vector, 0, len(points))
	}
	for i, idx := range indices {
		if data.Mask != nil && !data.Mask[idx] {
			continue
		}
		if nm != nil {
			n := nm.Data[idx]
			if projection.IsNull(n) {
				continue
			}
			cloud.Normals = append(cloud.Normals, n)
		}
		cloud.Points = append(cloud.Points, points[i])
	}
	return cloud, nil
}
