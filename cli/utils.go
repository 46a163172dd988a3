package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/pointcloud"
)

// printf prints a message with no decoration.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// samePath returns true if abs(path1) and abs(path2) are the same.
func samePath(path1, path2 string) (bool, error) {
	abs1, err := filepath.Abs(path1)
	if err != nil {
		return false, err
	}
	abs2, err := filepath.Abs(path2)
	if err != nil {
		return false, err
	}
	return abs1 == abs2, nil
}

// newLogger returns a logger writing to w at info level, or debug level when asked.
func newLogger(w io.Writer, debug bool) logging.Logger {
	logger := logging.NewBlankLogger("odometry")
	logger.AddAppender(logging.NewWriterAppender(w))
	if !debug {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

// expandCloudPaths replaces every directory argument with the pcd files it holds, sorted by
// name. Files are kept in the order given.
func expandCloudPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var inDir []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pcd") {
				inDir = append(inDir, filepath.Join(arg, entry.Name()))
			}
		}
		if len(inDir) == 0 {
			return nil, errors.Errorf("no pcd file in directory %q", arg)
		}
		sort.Strings(inDir)
		paths = append(paths, inDir...)
	}
	return paths, nil
}

func readCloud(path string) (cloud *pointcloud.PointCloud, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.ReadPCD(f)
}

func writeCloud(path string, cloud *pointcloud.PointCloud, pcdType pointcloud.PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.WritePCD(cloud, f, pcdType)
}
