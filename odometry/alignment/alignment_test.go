package alignment

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/optimization"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// corner samples two walls and a floor.
func corner() ([]r3.Vector, []r3.Vector) {
	var points, normals []r3.Vector
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			a, b := 0.3*float64(i), 0.3*float64(j)
			points = append(points, r3.Vector{X: 3, Y: a - 0.5, Z: b - 0.8})
			normals = append(normals, r3.Vector{X: -1})
			points = append(points, r3.Vector{X: a, Y: 2, Z: b - 0.8})
			normals = append(normals, r3.Vector{Y: -1})
			points = append(points, r3.Vector{X: a + 0.5, Y: b - 0.5, Z: -1})
			normals = append(normals, r3.Vector{Z: 1})
		}
	}
	return points, normals
}

func TestRegistry(t *testing.T) {
	test.That(t, Modes(), test.ShouldResemble, []string{ModePointToPlaneGaussNewton})

	_, err := New(utils.ModeConfig{Mode: "point_to_point_svd"}, Dependencies{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown alignment mode "point_to_point_svd"`)

	test.That(t, func() { Register(ModePointToPlaneGaussNewton, Registration{}) }, test.ShouldPanic)

	_, err = New(
		utils.ModeConfig{Mode: ModePointToPlaneGaussNewton, Attributes: utils.AttributeMap{"scheme": "tukey"}},
		Dependencies{Sigma: 0.1},
	)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tukey")

	_, err = New(
		utils.ModeConfig{Mode: ModePointToPlaneGaussNewton, Attributes: utils.AttributeMap{"num_gn_iters": 0}},
		Dependencies{Sigma: 0.1},
	)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSigmaInheritance(t *testing.T) {
	inherited, err := New(utils.ModeConfig{Mode: ModePointToPlaneGaussNewton}, Dependencies{Sigma: 0.3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inherited.(*PointToPlane).Config(), test.ShouldResemble, PointToPlaneConfig{
		NumGNIters:      1,
		Scheme:          optimization.Huber,
		Sigma:           0.3,
		MaxDampingTries: 10,
	})

	own, err := New(
		utils.ModeConfig{Mode: ModePointToPlaneGaussNewton, Attributes: utils.AttributeMap{
			"sigma":        0.05,
			"scheme":       "cauchy",
			"num_gn_iters": 3,
		}},
		Dependencies{Sigma: 0.3},
	)
	test.That(t, err, test.ShouldBeNil)
	conf := own.(*PointToPlane).Config()
	test.That(t, conf.Sigma, test.ShouldEqual, 0.05)
	test.That(t, conf.Scheme, test.ShouldEqual, optimization.Cauchy)
	test.That(t, conf.NumGNIters, test.ShouldEqual, 3)
}

func TestAlignRecoversMotion(t *testing.T) {
	reference, normals := corner()
	pose := spatialmath.NewEulerPose()
	truth := []float64{0.04, -0.02, 0.01, utils.DegToRad(0.5), utils.DegToRad(-0.5), utils.DegToRad(3)}
	target := spatialmath.ApplyTransformation(reference, spatialmath.Inverse(pose.BuildMatrix(truth)))

	align, err := New(
		utils.ModeConfig{Mode: ModePointToPlaneGaussNewton, Attributes: utils.AttributeMap{"num_gn_iters": 10}},
		Dependencies{Pose: pose, Sigma: 0.1, Logger: logging.NewTestLogger(t)},
	)
	test.That(t, err, test.ShouldBeNil)
	res, err := align.Align(reference, target, normals, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Residuals, test.ShouldHaveLength, len(reference))
	test.That(t, res.Loss, test.ShouldBeGreaterThan, 0)
	for j := range truth {
		test.That(t, res.Params[j], test.ShouldAlmostEqual, truth[j], 1e-6)
	}

	// Starting at the solution leaves nothing to do.
	res, err = align.Align(reference, target, normals, res.Params, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Loss, test.ShouldBeLessThan, 1e-12)
}

func TestAlignMask(t *testing.T) {
	reference, normals := corner()
	target := spatialmath.ApplyTransformation(reference, spatialmath.Transform{
		Rotation:    spatialmath.NewIdentityRotationMatrix(),
		Translation: r3.Vector{X: -0.02, Y: 0.01, Z: 0.03},
	})
	// Corrupt a correspondence and mask it out.
	target[0] = target[0].Add(r3.Vector{X: 5})
	mask := make([]bool, len(reference))
	for i := range mask {
		mask[i] = i != 0
	}

	align, err := NewPointToPlane(PointToPlaneConfig{NumGNIters: 5, Scheme: optimization.LeastSquare, MaxDampingTries: 10}, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	res, err := align.Align(reference, target, normals, nil, mask)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Residuals, test.ShouldHaveLength, len(reference)-1)
	test.That(t, res.Params[0], test.ShouldAlmostEqual, 0.02, 1e-9)
	test.That(t, res.Params[1], test.ShouldAlmostEqual, -0.01, 1e-9)
	test.That(t, res.Params[2], test.ShouldAlmostEqual, -0.03, 1e-9)

	_, err = align.Align(reference, target, normals, nil, make([]bool, len(reference)))
	test.That(t, optimization.IsDegenerateSystem(err), test.ShouldBeTrue)

	_, err = align.Align(reference, target, normals, nil, []bool{true})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, optimization.IsDegenerateSystem(err), test.ShouldBeFalse)

	_, err = align.Align(reference, target[:3], normals, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, optimization.IsDegenerateSystem(err), test.ShouldBeFalse)
}
