package odometry

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/odometry/odometry/alignment"
	"go.viam.com/odometry/odometry/localmap"
	"go.viam.com/odometry/pointcloud"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

const (
	recordingMapMode   = "recording"
	oscillatingMapMode = "oscillating"
	rejectingMapMode   = "rejecting"
	zeroStepMode       = "zero_step"
)

// recordingMaps holds every recording map built, latest last.
var recordingMaps []*recordingMap

func init() {
	localmap.Register(recordingMapMode, localmap.Registration{
		Constructor: func(utils.AttributeMap, localmap.Dependencies) (localmap.LocalMap, error) {
			m := &recordingMap{}
			m.Init()
			recordingMaps = append(recordingMaps, m)
			return m, nil
		},
	})
	localmap.Register(oscillatingMapMode, localmap.Registration{
		Constructor: func(utils.AttributeMap, localmap.Dependencies) (localmap.LocalMap, error) {
			return &oscillatingMap{recordingMap: recordingMap{pose: spatialmath.NewIdentityTransform()}}, nil
		},
	})
	localmap.Register(rejectingMapMode, localmap.Registration{
		Constructor: func(utils.AttributeMap, localmap.Dependencies) (localmap.LocalMap, error) {
			m := &rejectingMap{}
			m.Init()
			recordingMaps = append(recordingMaps, &m.recordingMap)
			return m, nil
		},
	})
	alignment.Register(zeroStepMode, alignment.Registration{
		Constructor: func(utils.AttributeMap, alignment.Dependencies) (alignment.Alignment, error) {
			return zeroStep{}, nil
		},
	})
}

type recordedUpdate struct {
	full bool
	pose spatialmath.Transform
}

// recordingMap keeps track of the updates it receives and matches nothing.
type recordingMap struct {
	pose    spatialmath.Transform
	updates []recordedUpdate
}

func (m *recordingMap) Init() {
	m.pose = spatialmath.NewIdentityTransform()
	m.updates = nil
}

func (m *recordingMap) NearestNeighborSearch(context.Context, []r3.Vector) (localmap.Correspondences, error) {
	return localmap.Correspondences{}, nil
}

func (m *recordingMap) Update(_ context.Context, relativePose spatialmath.Transform, data *localmap.FrameData) error {
	m.updates = append(m.updates, recordedUpdate{full: data != nil, pose: relativePose})
	if data != nil {
		m.pose = spatialmath.NewIdentityTransform()
	} else {
		m.pose = spatialmath.Compose(m.pose, relativePose)
	}
	return nil
}

func (m *recordingMap) CurrentPose() spatialmath.Transform {
	return m.pose
}

func (m *recordingMap) Size() int {
	return len(m.updates)
}

func (m *recordingMap) Cloud() *pointcloud.PointCloud {
	return &pointcloud.PointCloud{}
}

func (m *recordingMap) fullUpdates() []bool {
	full := make([]bool, len(m.updates))
	for i, u := range m.updates {
		full[i] = u.full
	}
	return full
}

// oscillatingMap answers every query with a plane offset by 5cm, alternating sides between
// calls, so that the pose never settles.
type oscillatingMap struct {
	recordingMap
	calls int
}

func (m *oscillatingMap) NearestNeighborSearch(_ context.Context, queries []r3.Vector) (localmap.Correspondences, error) {
	axes := []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	sign := 1.0
	if m.calls%2 == 1 {
		sign = -1
	}
	m.calls++

	var corr localmap.Correspondences
	for i, q := range queries {
		n := axes[i%3]
		corr.Reference = append(corr.Reference, q.Add(n.Mul(sign*0.05)))
		corr.Normals = append(corr.Normals, n)
		corr.Target = append(corr.Target, q)
	}
	return corr, nil
}

// rejectingMap accepts its seed frame and refuses every later full update without changing.
type rejectingMap struct {
	recordingMap
}

func (m *rejectingMap) Update(ctx context.Context, relativePose spatialmath.Transform, data *localmap.FrameData) error {
	if data != nil && len(m.updates) > 0 {
		return errors.New("local map is full")
	}
	return m.recordingMap.Update(ctx, relativePose, data)
}

// zeroStep reports an immediately converged alignment.
type zeroStep struct{}

func (zeroStep) Align(reference, _, _ []r3.Vector, _ []float64, _ []bool) (alignment.Result, error) {
	return alignment.Result{
		Params:    make([]float64, 6),
		Residuals: make([]float64, len(reference)),
	}, nil
}
