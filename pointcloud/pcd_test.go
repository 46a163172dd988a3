package pointcloud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/odometry/spatialmath"
)

const asciiPCD = `# .PCD v.7 - Point Cloud Data file format
VERSION .7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 1 2 3 1 0 0 0
POINTS 3
DATA ascii
0.5 -1 2
0 0 0
-3.25 4 0.125
`

func TestReadPCDAscii(t *testing.T) {
	pc, err := ReadPCD(strings.NewReader(asciiPCD))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Points, test.ShouldResemble, []r3.Vector{{X: 0.5, Y: -1, Z: 2}, {}, {X: -3.25, Y: 4, Z: 0.125}})
	test.That(t, pc.HasNormals(), test.ShouldBeFalse)
	test.That(t, pc.Viewpoint, test.ShouldNotBeNil)
	test.That(t, pc.Viewpoint.Translation, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, pc.NonNull().Size(), test.ShouldEqual, 2)
}

func TestReadPCDErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		from   string
		to     string
		errStr string
	}{
		{"version", "VERSION .7", "VERSION .6", "unsupported pcd version"},
		{"fields", "FIELDS x y z", "FIELDS x y z rgb", "unsupported pcd fields"},
		{"order", "WIDTH 3\nHEIGHT 1", "HEIGHT 1\nWIDTH 3", "supposed to start with WIDTH"},
		{"points", "POINTS 3", "POINTS 4", "does not match"},
		{"type", "TYPE F F F", "TYPE F F I", "unsupported TYPE"},
		{"truncated", "-3.25 4 0.125\n", "", "error reading point 2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(strings.Replace(asciiPCD, tc.from, tc.to, 1)))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestPCDRoundTrip(t *testing.T) {
	pc, err := New(
		[]r3.Vector{{X: 1.5, Y: -2, Z: 0.25}, {X: 10, Y: 20, Z: -30}},
		[]r3.Vector{{Z: 1}, {X: -1}},
	)
	test.That(t, err, test.ShouldBeNil)
	viewpoint := spatialmath.NewEulerPose().BuildMatrix([]float64{1, 2, 3, 0, 0, 0.5})
	pc.Viewpoint = &viewpoint

	for _, pcdType := range []PCDType{PCDAscii, PCDBinary} {
		var buf bytes.Buffer
		test.That(t, WritePCD(pc, &buf, pcdType), test.ShouldBeNil)
		test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z normal_x normal_y normal_z")

		back, err := ReadPCD(&buf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Points, test.ShouldResemble, pc.Points)
		test.That(t, back.Normals, test.ShouldResemble, pc.Normals)
		test.That(t, spatialmath.TransformAlmostEqual(*back.Viewpoint, viewpoint, 1e-5), test.ShouldBeTrue)
	}

	var buf bytes.Buffer
	test.That(t, WritePCD(pc, &buf, PCDCompressed), test.ShouldNotBeNil)
	noNormals := &PointCloud{Points: pc.Points}
	buf.Reset()
	test.That(t, WritePCD(noNormals, &buf, PCDAscii), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z\n")
	test.That(t, buf.String(), test.ShouldContainSubstring, "VIEWPOINT 0 0 0 1 0 0 0\n")
}
