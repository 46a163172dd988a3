package localmap

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/pointcloud"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// ModeKDTree selects the sliding window map searched with a KD tree.
const ModeKDTree = "kdtree"

func init() {
	Register(ModeKDTree, Registration{
		Constructor: func(attributes utils.AttributeMap, deps Dependencies) (LocalMap, error) {
			conf := DefaultKDTreeConfig()
			if err := utils.DecodeAttributes(attributes, &conf); err != nil {
				return nil, err
			}
			return NewKDTreeMap(conf, deps.Logger)
		},
	})
}

// KDTreeConfig configures a KD tree local map.
type KDTreeConfig struct {
	// NumFrames is the number of full updates kept in the window.
	NumFrames int `json:"num_frames"`
	// VoxelSize is the leaf size used when merging the window. Non positive disables it.
	VoxelSize float64 `json:"voxel_size"`
	// NumNeighbors is the neighborhood used to estimate normals for frames without a normal map.
	NumNeighbors int `json:"num_neighbors"`
	// MaxNeighborDistance rejects queries farther from the map.
	MaxNeighborDistance float64 `json:"max_neighbor_distance"`
	// ParallelThreshold is the query count from which searches are split across workers.
	ParallelThreshold int `json:"parallel_threshold"`
}

// DefaultKDTreeConfig returns the default KD tree local map configuration.
func DefaultKDTreeConfig() KDTreeConfig {
	return KDTreeConfig{
		NumFrames:           10,
		VoxelSize:           0.1,
		NumNeighbors:        10,
		MaxNeighborDistance: 0.5,
		ParallelThreshold:   2048,
	}
}

// Validate ensures all parts of the config are valid.
func (conf *KDTreeConfig) Validate(path string) error {
	if conf.NumFrames <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "num_frames")
	}
	if conf.NumNeighbors < 3 {
		return utils.NewConfigValidationError(path, errors.Errorf("num_neighbors must be at least 3, got %d", conf.NumNeighbors))
	}
	if conf.MaxNeighborDistance <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_neighbor_distance")
	}
	return nil
}

type kdtreeMap struct {
	conf   KDTreeConfig
	logger logging.Logger

	// frames are the window, oldest first, in the anchor frame.
	frames      []*pointcloud.PointCloud
	merged      *pointcloud.PointCloud
	tree        *pointcloud.KDTree
	currentPose spatialmath.Transform
}

// NewKDTreeMap returns a local map made of the last full updates, merged by voxel downsampling
// and searched with a KD tree.
func NewKDTreeMap(conf KDTreeConfig, logger logging.Logger) (LocalMap, error) {
	if err := conf.Validate(ModeKDTree); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger(ModeKDTree)
	}
	m := &kdtreeMap{conf: conf, logger: logger}
	m.Init()
	return m, nil
}

func (m *kdtreeMap) Init() {
	m.frames = nil
	m.merged = &pointcloud.PointCloud{}
	m.tree = nil
	m.currentPose = spatialmath.NewIdentityTransform()
}

func (m *kdtreeMap) CurrentPose() spatialmath.Transform {
	return m.currentPose
}

func (m *kdtreeMap) Size() int {
	return m.merged.Size()
}

func (m *kdtreeMap) Cloud() *pointcloud.PointCloud {
	cloud := m.merged.Transform(spatialmath.NewIdentityTransform())
	pose := m.currentPose
	cloud.Viewpoint = &pose
	return cloud
}

func (m *kdtreeMap) Update(ctx context.Context, relativePose spatialmath.Transform, data *FrameData) error {
	if !relativePose.IsFinite() {
		return errors.New("relative pose is not finite")
	}
	newPose := spatialmath.Compose(m.currentPose, relativePose)
	if data == nil {
		m.currentPose = newPose
		return nil
	}
	ctx, span := trace.StartSpan(ctx, "localmap::kdtree::Update")
	defer span.End()

	cloud, err := frameCloud(data)
	if err != nil {
		return err
	}
	if !cloud.HasNormals() {
		if cloud, err = m.withEstimatedNormals(ctx, cloud); err != nil {
			return err
		}
	}

	toNew := spatialmath.Inverse(newPose)
	frames := make([]*pointcloud.PointCloud, 0, len(m.frames)+1)
	for _, frame := range m.frames {
		frames = append(frames, frame.Transform(toNew))
	}
	frames = append(frames, cloud)
	if extra := len(frames) - m.conf.NumFrames; extra > 0 {
		frames = frames[extra:]
	}
	m.frames = frames
	m.currentPose = spatialmath.NewIdentityTransform()
	m.rebuild()
	m.logger.Debugw("local map updated", "frames", len(m.frames), "size", m.merged.Size())
	return nil
}

// withEstimatedNormals estimates normals seen from the frame origin and drops the points
// without one.
func (m *kdtreeMap) withEstimatedNormals(ctx context.Context, cloud *pointcloud.PointCloud) (*pointcloud.PointCloud, error) {
	normals, err := pointcloud.EstimateNormals(ctx, cloud.Points, m.conf.NumNeighbors, r3.Vector{})
	if err != nil {
		return nil, err
	}
	withNormals := &pointcloud.PointCloud{Points: cloud.Points, Normals: normals}
	keep := make([]int, 0, len(normals))
	for i, n := range normals {
		if n != (r3.Vector{}) {
			keep = append(keep, i)
		}
	}
	return withNormals.Subset(keep), nil
}

// rebuild merges the window, newest frame first, and indexes it.
func (m *kdtreeMap) rebuild() {
	all := &pointcloud.PointCloud{}
	for i := len(m.frames) - 1; i >= 0; i-- {
		all.Append(m.frames[i])
	}
	m.merged = pointcloud.VoxelDownsample(all, m.conf.VoxelSize)
	if m.merged.Size() == 0 {
		m.tree = nil
		return
	}
	m.tree = pointcloud.NewKDTree(m.merged.Points)
}

func (m *kdtreeMap) NearestNeighborSearch(ctx context.Context, queries []r3.Vector) (Correspondences, error) {
	ctx, span := trace.StartSpan(ctx, "localmap::kdtree::NearestNeighborSearch")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Correspondences{}, err
	}
	if m.tree == nil || len(queries) == 0 {
		return Correspondences{}, nil
	}

	maxDist2 := utils.Square(m.conf.MaxNeighborDistance)
	matches := make([]int, len(queries))
	search := func(i int) {
		matches[i] = -1
		nb, ok := m.tree.Nearest(m.currentPose.Apply(queries[i]))
		if ok && nb.Distance2 <= maxDist2 {
			matches[i] = nb.Index
		}
	}

	if len(queries) >= m.conf.ParallelThreshold {
		if err := utils.GroupWorkParallel(
			ctx,
			len(queries),
			nil,
			func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
				return func(memberNum, workNum int) { search(workNum) }, nil
			},
		); err != nil {
			return Correspondences{}, err
		}
	} else {
		for i := range queries {
			search(i)
		}
	}

	toQuery := spatialmath.Inverse(m.currentPose)
	var corr Correspondences
	for i, idx := range matches {
		if idx < 0 {
			continue
		}
		corr.add(
			toQuery.Apply(m.merged.Points[idx]),
			toQuery.Rotation.Apply(m.merged.Normals[idx]),
			queries[i],
		)
	}
	return corr, nil
}
