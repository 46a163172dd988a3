package odometry

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/odometry/alignment"
	"go.viam.com/odometry/odometry/initialization"
	"go.viam.com/odometry/odometry/localmap"
	"go.viam.com/odometry/optimization"
	"go.viam.com/odometry/pointcloud"
	"go.viam.com/odometry/projection"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// AlgorithmICPFrameToModel is the point to plane ICP registering frames against a local map.
const AlgorithmICPFrameToModel = "icp_F2M"

func init() {
	RegisterAlgorithm(AlgorithmICPFrameToModel, Registration{
		Constructor: func(conf *Config, logger logging.Logger) (Algorithm, error) {
			return NewICPFrameToModel(conf, logger)
		},
	})
}

// FrameReport summarizes the registration of one frame.
type FrameReport struct {
	Frame int
	// Iterations is the number of search and align rounds.
	Iterations int
	// Losses holds the robust alignment cost of every round.
	Losses    []float64
	Converged bool
	// FullMapUpdate tells whether the frame geometry was merged into the local map.
	FullMapUpdate   bool
	Correspondences int
	// MeanResidual and MedianResidual are absolute point to plane distances of the last round.
	MeanResidual   float64
	MedianResidual float64
}

// ICPFrameToModel registers every frame against a local map with point to plane ICP. It is not
// safe for concurrent use; frames must be processed in order.
type ICPFrameToModel struct {
	conf      *Config
	logger    logging.Logger
	pose      spatialmath.PoseRepresentation
	projector projection.Projector

	localMap    localmap.LocalMap
	motionModel initialization.Initialization
	alignment   alignment.Alignment

	runLogger        logging.Logger
	frameIndex       int
	relativePoses    []spatialmath.Transform
	reports          []FrameReport
	deltaSinceUpdate spatialmath.Transform
}

// NewICPFrameToModel builds the odometry and its components from conf.
func NewICPFrameToModel(conf *Config, logger logging.Logger) (*ICPFrameToModel, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger("odometry")
	}
	pose, err := spatialmath.RepresentationByName(conf.Pose)
	if err != nil {
		return nil, newConfigError(err)
	}
	projector, err := projection.NewSphericalProjector(conf.Projector)
	if err != nil {
		return nil, newConfigError(err)
	}
	motionModel, err := initialization.New(conf.Initialization, initialization.Dependencies{
		Pose:   pose,
		Logger: logger.Sublogger("initialization"),
	})
	if err != nil {
		return nil, newConfigError(err)
	}
	localMap, err := localmap.New(conf.LocalMap, localmap.Dependencies{
		Projector: projector,
		Logger:    logger.Sublogger("localmap"),
	})
	if err != nil {
		return nil, newConfigError(err)
	}
	align, err := alignment.New(conf.Alignment, alignment.Dependencies{
		Pose:   pose,
		Sigma:  conf.Sigma,
		Logger: logger.Sublogger("alignment"),
	})
	if err != nil {
		return nil, newConfigError(err)
	}

	icp := &ICPFrameToModel{
		conf:        conf,
		logger:      logger,
		pose:        pose,
		projector:   projector,
		localMap:    localMap,
		motionModel: motionModel,
		alignment:   align,
	}
	icp.Init()
	return icp, nil
}

// Init resets the odometry and its components for a new sequence.
func (icp *ICPFrameToModel) Init() {
	icp.localMap.Init()
	icp.motionModel.Init()
	icp.frameIndex = 0
	icp.relativePoses = nil
	icp.reports = nil
	icp.deltaSinceUpdate = spatialmath.NewIdentityTransform()
	runID := uuid.New()
	icp.runLogger = icp.logger.Sublogger(runID.String())
	icp.runLogger.Debugw("odometry initialized", "algorithm", icp.conf.Algorithm, "local_map", icp.conf.LocalMap.Mode)
}

// ProcessNextFrame reads the frame, registers it against the local map and updates the map and
// the motion model. A failed frame leaves the odometry untouched. Alignment failures wrap an
// optimization.DegenerateSystemError naming the frame and round.
func (icp *ICPFrameToModel) ProcessNextFrame(ctx context.Context, frame Frame) error {
	ctx, span := trace.StartSpan(ctx, "odometry::icp::ProcessNextFrame")
	defer span.End()
	span.AddAttributes(trace.Int64Attribute("frame", int64(icp.frameIndex)))

	input, err := readInput(frame, icp.conf.DataKey, icp.conf.NormalMapKey, icp.projector)
	if err != nil {
		return err
	}
	icp.runLogger.Debugw("processing frame", "frame", icp.frameIndex, "points", len(input.points))

	if icp.frameIndex == 0 {
		identity := spatialmath.NewIdentityTransform()
		if err := icp.localMap.Update(ctx, identity, input.frameData()); err != nil {
			return errors.Wrap(err, "cannot seed the local map")
		}
		icp.relativePoses = append(icp.relativePoses, identity)
		icp.reports = append(icp.reports, FrameReport{Frame: 0, Converged: true, FullMapUpdate: true})
		icp.frameIndex++
		icp.runLogger.Infow("local map seeded", "size", icp.localMap.Size())
		return nil
	}

	initial, err := icp.motionModel.NextInitialPose(frame)
	if err != nil {
		return errors.Wrapf(err, "frame %d: cannot compute the initial estimate", icp.frameIndex)
	}
	rpose, report, err := icp.registerNewFrame(ctx, input.points, initial)
	if err != nil {
		return err
	}
	if !rpose.IsFinite() {
		return errors.Wrapf(optimization.NewDegenerateSystemError("pose estimate is not finite"), "frame %d", icp.frameIndex)
	}
	// Local map updates are all or nothing and the motion model only rejects non finite motions.
	if report.FullMapUpdate, err = icp.updateMap(ctx, rpose, input); err != nil {
		return errors.Wrapf(err, "frame %d: cannot update the local map", icp.frameIndex)
	}
	if err := icp.motionModel.RegisterMotion(rpose, frame); err != nil {
		return errors.Wrapf(err, "frame %d", icp.frameIndex)
	}

	icp.relativePoses = append(icp.relativePoses, rpose)
	icp.reports = append(icp.reports, report)
	icp.frameIndex++
	return nil
}

// registerNewFrame searches and aligns until the pose increment vanishes or the number of
// rounds reaches the configured cap.
func (icp *ICPFrameToModel) registerNewFrame(
	ctx context.Context,
	points []r3.Vector,
	initial spatialmath.Transform,
) (spatialmath.Transform, FrameReport, error) {
	ctx, span := trace.StartSpan(ctx, "odometry::icp::registerNewFrame")
	defer span.End()

	report := FrameReport{Frame: icp.frameIndex}
	newPose := initial
	var deltaNorm float64
	for iter := 0; iter < icp.conf.MaxNumAlignments; iter++ {
		moved := spatialmath.ApplyTransformation(points, newPose)
		corr, err := icp.localMap.NearestNeighborSearch(ctx, moved)
		if err != nil {
			return spatialmath.Transform{}, report, errors.Wrapf(err, "frame %d, alignment %d: nearest neighbor search",
				icp.frameIndex, iter)
		}
		res, err := icp.alignment.Align(corr.Reference, corr.Target, corr.Normals, nil, nil)
		if err != nil {
			return spatialmath.Transform{}, report, errors.Wrapf(err, "frame %d, alignment %d", icp.frameIndex, iter)
		}

		report.Iterations++
		report.Losses = append(report.Losses, res.Loss)
		report.Correspondences = corr.Len()
		report.MeanResidual, report.MedianResidual = residualStats(res.Residuals)

		deltaNorm = floats.Norm(res.Params, 2)
		if deltaNorm < icp.conf.ThresholdDeltaPose {
			report.Converged = true
			break
		}
		newPose = spatialmath.Compose(icp.pose.BuildMatrix(res.Params), newPose)
		if !newPose.IsFinite() {
			return spatialmath.Transform{}, report, errors.Wrapf(
				optimization.NewDegenerateSystemError("pose estimate is not finite"),
				"frame %d, alignment %d", icp.frameIndex, iter)
		}
	}

	if !report.Converged {
		icp.runLogger.Warnw("registration stopped at the iteration cap",
			"frame", icp.frameIndex, "iterations", report.Iterations, "delta_norm", deltaNorm)
	}
	span.AddAttributes(
		trace.Int64Attribute("iterations", int64(report.Iterations)),
		trace.BoolAttribute("converged", report.Converged),
	)
	return newPose, report, nil
}

// updateMap merges the frame into the local map once the motion since the last merge exceeds
// the thresholds, and only moves the map pose otherwise.
func (icp *ICPFrameToModel) updateMap(ctx context.Context, rpose spatialmath.Transform, input *frameInput) (bool, error) {
	newDelta := spatialmath.Compose(icp.deltaSinceUpdate, rpose)
	translation := newDelta.Translation.Norm()
	rotation := utils.RadToDeg(newDelta.RotationAngle())

	if translation > icp.conf.ThresholdTrans || rotation > icp.conf.ThresholdRot {
		if err := icp.localMap.Update(ctx, rpose, input.frameData()); err != nil {
			return false, err
		}
		icp.deltaSinceUpdate = spatialmath.NewIdentityTransform()
		icp.runLogger.Debugw("full local map update", "frame", icp.frameIndex,
			"translation", translation, "rotation_deg", rotation, "size", icp.localMap.Size())
		return true, nil
	}

	if err := icp.localMap.Update(ctx, rpose, nil); err != nil {
		return false, err
	}
	icp.deltaSinceUpdate = newDelta
	return false, nil
}

func residualStats(residuals []float64) (float64, float64) {
	abs := stats.Float64Data(lo.Map(residuals, func(r float64, _ int) float64 { return math.Abs(r) }))
	mean, err := abs.Mean()
	if err != nil {
		return 0, 0
	}
	median, err := abs.Median()
	if err != nil {
		return mean, 0
	}
	return mean, median
}

// RelativePoses returns the pose of every processed frame in the previous frame. The first is
// the identity.
func (icp *ICPFrameToModel) RelativePoses() []spatialmath.Transform {
	return append([]spatialmath.Transform(nil), icp.relativePoses...)
}

// StackedRelativePoses returns the relative poses as an Nx4x4 tensor, nil before the first
// frame.
func (icp *ICPFrameToModel) StackedRelativePoses() *tensor.Dense {
	return StackPoses(icp.relativePoses)
}

// Trajectory returns the pose of every processed frame in the first frame.
func (icp *ICPFrameToModel) Trajectory() []spatialmath.Transform {
	return Trajectory(icp.relativePoses)
}

// Reports returns the registration summary of every processed frame.
func (icp *ICPFrameToModel) Reports() []FrameReport {
	return append([]FrameReport(nil), icp.reports...)
}

// MapCloud returns the local map geometry in its anchor frame.
func (icp *ICPFrameToModel) MapCloud() *pointcloud.PointCloud {
	return icp.localMap.Cloud()
}
