package cli

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/odometry"
	"go.viam.com/odometry/pointcloud"
	"go.viam.com/odometry/spatialmath"
)

type runArgs struct {
	Config    string
	Out       string
	Format    string
	MapOut    string
	MapFormat string
	Paths     []string
}

// mapper is implemented by algorithms that expose their local map.
type mapper interface {
	MapCloud() *pointcloud.PointCloud
}

// RunAction is the corresponding action for 'run'.
func RunAction(c *cli.Context) error {
	args := runArgs{
		Config:    c.String(generalFlagConfig),
		Out:       c.String(runFlagOut),
		Format:    c.String(runFlagFormat),
		MapOut:    c.String(runFlagMapOut),
		MapFormat: c.String(runFlagMapFormat),
		Paths:     c.Args().Slice(),
	}
	logger := newLogger(c.App.ErrWriter, c.Bool(generalFlagDebug))
	return runOdometry(c.Context, args, c.App.Writer, logger)
}

func (args *runArgs) validate() error {
	if len(args.Paths) == 0 {
		return errors.New("no point cloud given. use --help for more information")
	}
	if args.Format != formatKITTI && args.Format != formatTUM {
		return errors.Errorf("unknown trajectory format %q, expected %q or %q", args.Format, formatKITTI, formatTUM)
	}
	if args.MapFormat != mapFormatASCII && args.MapFormat != mapFormatBinary {
		return errors.Errorf("unknown map format %q, expected %q or %q", args.MapFormat, mapFormatASCII, mapFormatBinary)
	}
	if args.Out != "" && args.MapOut != "" {
		same, err := samePath(args.Out, args.MapOut)
		if err != nil {
			return err
		}
		if same {
			return errors.New("--out and --map-out must name different files")
		}
	}
	return nil
}

func runOdometry(ctx context.Context, args runArgs, out io.Writer, logger logging.Logger) error {
	if err := args.validate(); err != nil {
		return err
	}
	paths, err := expandCloudPaths(args.Paths)
	if err != nil {
		return err
	}

	conf := odometry.DefaultConfig()
	if args.Config != "" {
		if conf, err = odometry.LoadConfig(args.Config); err != nil {
			return err
		}
	}
	algo, err := odometry.New(conf, logger)
	if err != nil {
		return err
	}

	for i, path := range paths {
		cloud, err := readCloud(path)
		if err != nil {
			return errors.Wrapf(err, "cannot read %q", path)
		}
		if err := algo.ProcessNextFrame(ctx, odometry.Frame{conf.DataKey: cloud.Points}); err != nil {
			return errors.Wrapf(err, "cannot register %q", path)
		}
		logger.Debugw("frame registered", "frame", i, "path", path, "points", cloud.Size())
	}
	trajectory := odometry.Trajectory(algo.RelativePoses())
	last := trajectory[len(trajectory)-1]
	logger.Infow("sequence registered", "frames", len(trajectory),
		"distance", pathLength(trajectory), "final_x", last.Translation.X, "final_y", last.Translation.Y,
		"final_z", last.Translation.Z)

	if err := writeTrajectory(args.Out, out, trajectory, args.Format); err != nil {
		return err
	}
	if args.MapOut == "" {
		return nil
	}
	m, ok := algo.(mapper)
	if !ok {
		logger.Warnw("algorithm does not expose its map, nothing written", "algorithm", conf.Algorithm, "path", args.MapOut)
		return nil
	}
	pcdType := pointcloud.PCDBinary
	if args.MapFormat == mapFormatASCII {
		pcdType = pointcloud.PCDAscii
	}
	return writeCloud(args.MapOut, m.MapCloud(), pcdType)
}

func pathLength(trajectory []spatialmath.Transform) float64 {
	var length float64
	for i := 1; i < len(trajectory); i++ {
		length += trajectory[i].Translation.Sub(trajectory[i-1].Translation).Norm()
	}
	return length
}

func writeTrajectory(path string, stdout io.Writer, trajectory []spatialmath.Transform, format string) (err error) {
	if path == "" {
		return formatTrajectory(stdout, trajectory, format)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return formatTrajectory(f, trajectory, format)
}

// formatTrajectory writes one pose per line. KITTI lines hold the top 3x4 block of the matrix
// row by row; TUM lines hold the frame index, the translation and the quaternion as x y z w.
func formatTrajectory(w io.Writer, trajectory []spatialmath.Transform, format string) error {
	for i, pose := range trajectory {
		var values []float64
		switch format {
		case formatKITTI:
			data := pose.Matrix().RawMatrix().Data
			values = data[:12]
		case formatTUM:
			q := pose.Quaternion()
			t := pose.Translation
			values = []float64{float64(i), t.X, t.Y, t.Z, q.Imag, q.Jmag, q.Kmag, q.Real}
		default:
			return errors.Errorf("unknown trajectory format %q", format)
		}
		tokens := make([]string, len(values))
		for j, v := range values {
			tokens[j] = strconv.FormatFloat(v, 'e', 9, 64)
		}
		printf(w, "%s", strings.Join(tokens, " "))
	}
	return nil
}
