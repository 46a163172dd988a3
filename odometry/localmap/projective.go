package localmap

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/pointcloud"
	"go.viam.com/odometry/projection"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// ModeProjective selects the map rendered as a vertex map and searched by projection.
const ModeProjective = "projective"

func init() {
	Register(ModeProjective, Registration{
		Constructor: func(attributes utils.AttributeMap, deps Dependencies) (LocalMap, error) {
			conf := DefaultProjectiveConfig()
			if err := utils.DecodeAttributes(attributes, &conf); err != nil {
				return nil, err
			}
			return NewProjectiveMap(conf, deps.Projector, deps.Logger)
		},
	})
}

// ProjectiveConfig configures a projective local map.
type ProjectiveConfig struct {
	// MaxNeighborDistance rejects queries farther from the map.
	MaxNeighborDistance float64 `json:"max_neighbor_distance"`
	// KeepPrevious fills the cells a new frame leaves empty with the previous reference.
	KeepPrevious bool `json:"keep_previous"`
}

// DefaultProjectiveConfig returns the default projective local map configuration.
func DefaultProjectiveConfig() ProjectiveConfig {
	return ProjectiveConfig{MaxNeighborDistance: 0.5, KeepPrevious: true}
}

// Validate ensures all parts of the config are valid.
func (conf *ProjectiveConfig) Validate(path string) error {
	if conf.MaxNeighborDistance <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_neighbor_distance")
	}
	return nil
}

type projectiveMap struct {
	conf      ProjectiveConfig
	projector projection.Projector
	logger    logging.Logger

	vertexMap   *projection.VertexMap
	normalMap   *projection.NormalMap
	currentPose spatialmath.Transform
}

// NewProjectiveMap returns a local map holding a single reference vertex map. Queries are
// matched with the point of the cell they project into.
func NewProjectiveMap(conf ProjectiveConfig, projector projection.Projector, logger logging.Logger) (LocalMap, error) {
	if err := conf.Validate(ModeProjective); err != nil {
		return nil, err
	}
	if projector == nil {
		return nil, errors.New("projective local map requires a projector")
	}
	if logger == nil {
		logger = logging.NewBlankLogger(ModeProjective)
	}
	m := &projectiveMap{conf: conf, projector: projector, logger: logger}
	m.Init()
	return m, nil
}

func (m *projectiveMap) Init() {
	m.vertexMap = nil
	m.normalMap = nil
	m.currentPose = spatialmath.NewIdentityTransform()
}

func (m *projectiveMap) CurrentPose() spatialmath.Transform {
	return m.currentPose
}

func (m *projectiveMap) Size() int {
	if m.vertexMap == nil {
		return 0
	}
	return len(m.vertexMap.Points())
}

func (m *projectiveMap) Cloud() *pointcloud.PointCloud {
	cloud := &pointcloud.PointCloud{}
	if m.vertexMap != nil {
		for i, p := range m.vertexMap.Data {
			n := m.normalMap.Data[i]
			if projection.IsNull(p) || projection.IsNull(n) {
				continue
			}
			cloud.Points = append(cloud.Points, p)
			cloud.Normals = append(cloud.Normals, n)
		}
	}
	pose := m.currentPose
	cloud.Viewpoint = &pose
	return cloud
}

func (m *projectiveMap) checkDims(name string, grid *projection.VertexMap) error {
	if err := grid.Validate(); err != nil {
		return errors.Wrap(err, name)
	}
	if grid.Height != m.projector.Height() || grid.Width != m.projector.Width() {
		return errors.Errorf("%s is %dx%d, projector is %dx%d",
			name, grid.Height, grid.Width, m.projector.Height(), m.projector.Width())
	}
	return nil
}

func (m *projectiveMap) Update(ctx context.Context, relativePose spatialmath.Transform, data *FrameData) error {
	if !relativePose.IsFinite() {
		return errors.New("relative pose is not finite")
	}
	newPose := spatialmath.Compose(m.currentPose, relativePose)
	if data == nil {
		m.currentPose = newPose
		return nil
	}
	ctx, span := trace.StartSpan(ctx, "localmap::projective::Update")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}

	var frameMap *projection.VertexMap
	if data.VertexMap != nil {
		if err := m.checkDims("vertex map", data.VertexMap); err != nil {
			return err
		}
		frameMap = data.VertexMap.Clone()
	} else {
		if data.NormalMap != nil || data.Mask != nil {
			return errors.New("a normal map or mask requires a vertex map")
		}
		frameMap = m.projector.BuildProjectionMap(data.Points)
	}
	if data.Mask != nil {
		if len(data.Mask) != len(frameMap.Data) {
			return errors.Errorf("mask has %d cells, vertex map has %d", len(data.Mask), len(frameMap.Data))
		}
		for i, keep := range data.Mask {
			if !keep {
				frameMap.Data[i] = r3.Vector{}
			}
		}
	}
	if data.NormalMap != nil {
		if err := m.checkDims("normal map", data.NormalMap); err != nil {
			return err
		}
	}

	merged := frameMap.Clone()
	if m.conf.KeepPrevious && m.vertexMap != nil {
		toNew := spatialmath.Inverse(newPose)
		previous := m.projector.BuildProjectionMap(
			spatialmath.ApplyTransformation(m.projector.ProjectionToPoints(m.vertexMap), toNew))
		for i, p := range merged.Data {
			if projection.IsNull(p) {
				merged.Data[i] = previous.Data[i]
			}
		}
	}

	normals := projection.EstimateNormalMap(merged)
	if data.NormalMap != nil {
		for i, n := range data.NormalMap.Data {
			if !projection.IsNull(n) && !projection.IsNull(frameMap.Data[i]) {
				normals.Data[i] = n
			}
		}
	}

	m.vertexMap = merged
	m.normalMap = normals
	m.currentPose = spatialmath.NewIdentityTransform()
	m.logger.Debugw("local map updated", "size", m.Size())
	return nil
}

func (m *projectiveMap) NearestNeighborSearch(ctx context.Context, queries []r3.Vector) (Correspondences, error) {
	ctx, span := trace.StartSpan(ctx, "localmap::projective::NearestNeighborSearch")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Correspondences{}, err
	}
	var corr Correspondences
	if m.vertexMap == nil {
		return corr, nil
	}

	maxDist2 := utils.Square(m.conf.MaxNeighborDistance)
	toQuery := spatialmath.Inverse(m.currentPose)
	for _, q := range queries {
		inAnchor := m.currentPose.Apply(q)
		row, col, ok := m.projector.Pixel(inAnchor)
		if !ok {
			continue
		}
		ref := m.vertexMap.At(row, col)
		n := m.normalMap.At(row, col)
		if projection.IsNull(ref) || projection.IsNull(n) {
			continue
		}
		if ref.Sub(inAnchor).Norm2() > maxDist2 {
			continue
		}
		corr.add(toQuery.Apply(ref), toQuery.Rotation.Apply(n), q)
	}
	return corr, nil
}
