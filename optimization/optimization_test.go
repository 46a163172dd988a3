package optimization

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/spatialmath"
	"go.viam.com/odometry/utils"
)

// linearCost is r = A·x - b.
type linearCost struct {
	a *mat.Dense
	b []float64
}

func (c *linearCost) NumParams() int {
	_, cols := c.a.Dims()
	return cols
}

func (c *linearCost) NumResiduals() int {
	return len(c.b)
}

func (c *linearCost) Residuals(params []float64) []float64 {
	var out mat.VecDense
	out.MulVec(c.a, mat.NewVecDense(len(params), params))
	res := make([]float64, len(c.b))
	for i := range res {
		res[i] = out.AtVec(i) - c.b[i]
	}
	return res
}

func (c *linearCost) Jacobian(params []float64) *mat.Dense {
	return mat.DenseCopyOf(c.a)
}

// threePlaneScene samples two walls and a floor so every pose parameter is observable.
func threePlaneScene() ([]r3.Vector, []r3.Vector) {
	var points, normals []r3.Vector
	for i := 0; i < 40; i++ {
		points = append(points, r3.Vector{X: 3, Y: -1 + 0.25*float64(i%8), Z: -0.8 + 0.3*float64(i/8)})
		normals = append(normals, r3.Vector{X: -1})
	}
	for i := 0; i < 30; i++ {
		points = append(points, r3.Vector{X: 0.3 * float64(i%6), Y: 2, Z: -0.8 + 0.3*float64(i/6)})
		normals = append(normals, r3.Vector{Y: -1})
	}
	for i := 0; i < 30; i++ {
		points = append(points, r3.Vector{X: 0.4 * float64(i%6), Y: -1 + 0.5*float64(i/6), Z: -1})
		normals = append(normals, r3.Vector{Z: 1})
	}
	return points, normals
}

func TestSchemes(t *testing.T) {
	test.That(t, Huber.Validate(), test.ShouldBeNil)
	test.That(t, Scheme("tukey").Validate(), test.ShouldNotBeNil)

	test.That(t, Huber.Weight(0.05, 0.1), test.ShouldEqual, 1.)
	test.That(t, Huber.Weight(-0.4, 0.1), test.ShouldAlmostEqual, 0.25)
	test.That(t, LeastSquare.Weight(100, 0.1), test.ShouldEqual, 1.)

	const h = 1e-6
	for _, s := range []Scheme{LeastSquare, Huber, Cauchy, GemanMcClure} {
		for _, r := range []float64{-2, -0.3, -0.05, 0.01, 0.2, 1.5} {
			derivative := (s.Loss(r+h, 0.1) - s.Loss(r-h, 0.1)) / (2 * h)
			test.That(t, derivative, test.ShouldAlmostEqual, s.Weight(r, 0.1)*r, 1e-6)
			test.That(t, s.Loss(r, 0.1), test.ShouldBeGreaterThanOrEqualTo, 0)
		}
	}
}

func TestGaussNewtonConfig(t *testing.T) {
	conf := DefaultGaussNewtonConfig()
	test.That(t, conf.Validate("gn"), test.ShouldBeNil)

	conf.Scheme = "tukey"
	test.That(t, conf.Validate("gn"), test.ShouldNotBeNil)

	conf = DefaultGaussNewtonConfig()
	conf.MaxIters = 0
	_, err := NewGaussNewton(conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_iters")
}

func TestGaussNewtonLinear(t *testing.T) {
	gn, err := NewGaussNewton(GaussNewtonConfig{MaxIters: 1, Scheme: LeastSquare}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	cost := &linearCost{
		a: mat.NewDense(3, 2, []float64{1, 0, 0, 2, 1, 1}),
		b: []float64{1, 4, 3},
	}
	res, err := gn.Compute(cost, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Iterations, test.ShouldEqual, 1)
	test.That(t, res.Damping, test.ShouldEqual, 0.)
	test.That(t, res.Params[0], test.ShouldAlmostEqual, 1)
	test.That(t, res.Params[1], test.ShouldAlmostEqual, 2)
	test.That(t, res.Residuals, test.ShouldResemble, []float64{-1, -4, -3})
	test.That(t, res.Loss, test.ShouldAlmostEqual, 13)

	_, err = gn.Compute(cost, []float64{1})
	test.That(t, IsDegenerateSystem(err), test.ShouldBeTrue)
}

func TestGaussNewtonDegenerate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	gn, err := NewGaussNewton(DefaultGaussNewtonConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	pose := spatialmath.NewEulerPose()

	empty, err := NewPointToPlaneCost(pose, nil, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = gn.Compute(empty, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsDegenerateSystem(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no correspondences")

	nan, err := NewPointToPlaneCost(pose,
		[]r3.Vector{{X: 1}}, []r3.Vector{{X: math.NaN()}}, []r3.Vector{{X: 1}})
	test.That(t, err, test.ShouldBeNil)
	_, err = gn.Compute(nan, nil)
	test.That(t, IsDegenerateSystem(err), test.ShouldBeTrue)

	_, err = NewPointToPlaneCost(pose, []r3.Vector{{X: 1}}, nil, []r3.Vector{{X: 1}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsDegenerateSystem(err), test.ShouldBeFalse)

	// A single plane leaves three parameters unobservable; damping still yields a finite step
	// that fixes the observable offset.
	var reference, target, normals []r3.Vector
	for i := 0; i < 25; i++ {
		q := r3.Vector{X: 0.2 * float64(i%5), Y: 0.2 * float64(i/5), Z: -1}
		reference = append(reference, q)
		target = append(target, q.Add(r3.Vector{Z: 0.05}))
		normals = append(normals, r3.Vector{Z: 1})
	}
	planar, err := NewPointToPlaneCost(pose, reference, target, normals)
	test.That(t, err, test.ShouldBeNil)
	res, err := gn.Compute(planar, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Damping, test.ShouldBeGreaterThan, 0)
	test.That(t, utils.IsFinite(res.Params...), test.ShouldBeTrue)
	test.That(t, res.Params[2], test.ShouldAlmostEqual, -0.05, 1e-6)

	// With no damping allowed the same system is reported as degenerate.
	conf := DefaultGaussNewtonConfig()
	conf.MaxDampingTries = 0
	strict, err := NewGaussNewton(conf, logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = strict.Compute(planar, nil)
	test.That(t, IsDegenerateSystem(err), test.ShouldBeTrue)
}

func TestPointToPlaneJacobian(t *testing.T) {
	reference, normals := threePlaneScene()
	pose := spatialmath.NewEulerPose()
	cost, err := NewPointToPlaneCost(pose, reference[:10], reference[50:60], normals[:10])
	test.That(t, err, test.ShouldBeNil)

	params := []float64{0.1, -0.2, 0.05, 0.02, -0.03, 0.1}
	jac := cost.Jacobian(params)
	const h = 1e-6
	for j := range params {
		plus := append([]float64(nil), params...)
		minus := append([]float64(nil), params...)
		plus[j] += h
		minus[j] -= h
		rp, rm := cost.Residuals(plus), cost.Residuals(minus)
		for i := range rp {
			test.That(t, jac.At(i, j), test.ShouldAlmostEqual, (rp[i]-rm[i])/(2*h), 1e-6)
		}
	}
}

func TestGaussNewtonConvergesMonotonically(t *testing.T) {
	reference, normals := threePlaneScene()
	pose := spatialmath.NewEulerPose()
	truth := []float64{0.05, 0, 0, 0, 0, utils.DegToRad(2)}
	target := spatialmath.ApplyTransformation(reference, spatialmath.Inverse(pose.BuildMatrix(truth)))

	cost, err := NewPointToPlaneCost(pose, reference, target, normals)
	test.That(t, err, test.ShouldBeNil)
	gn, err := NewGaussNewton(DefaultGaussNewtonConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	params := pose.Zero()
	var losses []float64
	for i := 0; i < 10; i++ {
		res, err := gn.Compute(cost, params)
		test.That(t, err, test.ShouldBeNil)
		losses = append(losses, res.Loss)
		params = res.Params
	}
	for i := 1; i < len(losses); i++ {
		test.That(t, losses[i], test.ShouldBeLessThanOrEqualTo, losses[i-1]+1e-15)
	}
	test.That(t, losses[len(losses)-1], test.ShouldBeLessThan, 1e-12)
	for j := range truth {
		test.That(t, params[j], test.ShouldAlmostEqual, truth[j], 1e-6)
	}
}
