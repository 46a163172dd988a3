package optimization

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/odometry/logging"
	"go.viam.com/odometry/utils"
)

const (
	// maxConditionNumber is the largest condition number of the damped normal equations that
	// is trusted.
	maxConditionNumber = 1e12
	// initialDampingScale is the first damping tried, relative to the mean diagonal of JᵀWJ.
	initialDampingScale = 1e-9
	dampingGrowth       = 10
	// minStepNorm ends the inner iterations early once updates vanish.
	minStepNorm = 1e-12
)

// GaussNewtonConfig configures a GaussNewton solver.
type GaussNewtonConfig struct {
	MaxIters        int     `json:"max_iters"`
	Scheme          Scheme  `json:"scheme"`
	Sigma           float64 `json:"sigma"`
	MaxDampingTries int     `json:"max_damping_tries"`
}

// DefaultGaussNewtonConfig runs a single Huber weighted iteration.
func DefaultGaussNewtonConfig() GaussNewtonConfig {
	return GaussNewtonConfig{MaxIters: 1, Scheme: Huber, Sigma: 0.1, MaxDampingTries: 10}
}

// Validate ensures all parts of the config are valid.
func (conf *GaussNewtonConfig) Validate(path string) error {
	if conf.MaxIters <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_iters")
	}
	if err := conf.Scheme.Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if conf.Sigma <= 0 && conf.Scheme != LeastSquare {
		return utils.NewConfigValidationFieldRequiredError(path, "sigma")
	}
	if conf.MaxDampingTries < 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_damping_tries")
	}
	return nil
}

// Result is the outcome of a Compute call.
type Result struct {
	// Params is the final estimate.
	Params []float64
	// Residuals are evaluated at the starting estimate of the call.
	Residuals []float64
	// Loss is the robust cost of Residuals.
	Loss float64
	// Iterations is the number of steps taken.
	Iterations int
	// Damping is the largest damping used by any step.
	Damping float64
}

// GaussNewton minimizes robust sums of squares. Each step solves
// (JᵀWJ + λI)·Δ = -JᵀW·r with a Cholesky factorization, escalating λ from zero whenever the
// system is not positive definite or too badly conditioned.
type GaussNewton struct {
	conf   GaussNewtonConfig
	logger logging.Logger
}

// NewGaussNewton returns a solver for the given configuration.
func NewGaussNewton(conf GaussNewtonConfig, logger logging.Logger) (*GaussNewton, error) {
	if err := conf.Validate("gauss_newton"); err != nil {
		return nil, err
	}
	return &GaussNewton{conf: conf, logger: logger}, nil
}

// Config returns the solver configuration.
func (gn *GaussNewton) Config() GaussNewtonConfig {
	return gn.conf
}

// Compute runs up to MaxIters steps from initial. A nil initial starts from zero.
func (gn *GaussNewton) Compute(cost Cost, initial []float64) (Result, error) {
	numParams := cost.NumParams()
	if initial == nil {
		initial = make([]float64, numParams)
	}
	if len(initial) != numParams {
		return Result{}, NewDegenerateSystemError("initial estimate has %d parameters, expected %d", len(initial), numParams)
	}
	if cost.NumResiduals() == 0 {
		return Result{}, NewDegenerateSystemError("no correspondences")
	}

	params := append([]float64(nil), initial...)
	res := Result{}
	for iter := 0; iter < gn.conf.MaxIters; iter++ {
		residuals := cost.Residuals(params)
		if !utils.IsFinite(residuals...) {
			return Result{}, NewDegenerateSystemError("non finite residuals at iteration %d", iter)
		}
		if iter == 0 {
			res.Residuals = residuals
			res.Loss = gn.loss(residuals)
		}
		jac := cost.Jacobian(params)
		if !utils.IsFinite(jac.RawMatrix().Data...) {
			return Result{}, NewDegenerateSystemError("non finite jacobian at iteration %d", iter)
		}

		step, damping, err := gn.step(jac, residuals)
		if err != nil {
			return Result{}, err
		}
		floats.Add(params, step)
		res.Iterations++
		if damping > res.Damping {
			res.Damping = damping
		}
		if floats.Norm(step, 2) < minStepNorm {
			break
		}
	}
	res.Params = params
	return res, nil
}

func (gn *GaussNewton) loss(residuals []float64) float64 {
	var total float64
	for _, r := range residuals {
		total += gn.conf.Scheme.Loss(r, gn.conf.Sigma)
	}
	return total
}

// step builds and solves the weighted normal equations.
func (gn *GaussNewton) step(jac *mat.Dense, residuals []float64) ([]float64, float64, error) {
	numResiduals, numParams := jac.Dims()

	weights := make([]float64, numResiduals)
	wr := mat.NewVecDense(numResiduals, nil)
	for i, r := range residuals {
		weights[i] = gn.conf.Scheme.Weight(r, gn.conf.Sigma)
		wr.SetVec(i, -weights[i]*r)
	}

	// JᵀWJ, accumulated row by row to avoid materializing W.
	hessian := mat.NewSymDense(numParams, nil)
	row := make([]float64, numParams)
	for i := 0; i < numResiduals; i++ {
		mat.Row(row, i, jac)
		hessian.SymRankOne(hessian, weights[i], mat.NewVecDense(numParams, row))
	}
	var gradient mat.VecDense
	gradient.MulVec(jac.T(), wr)

	var trace float64
	for i := 0; i < numParams; i++ {
		trace += hessian.At(i, i)
	}
	if !utils.IsFinite(trace) {
		return nil, 0, NewDegenerateSystemError("non finite normal equations")
	}
	scale := trace / float64(numParams)
	if scale <= 0 {
		scale = 1
	}

	damped := mat.NewSymDense(numParams, nil)
	var lambda float64
	for try := 0; try <= gn.conf.MaxDampingTries; try++ {
		damped.CopySym(hessian)
		for i := 0; i < numParams; i++ {
			damped.SetSym(i, i, damped.At(i, i)+lambda)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(damped); ok && chol.Cond() <= maxConditionNumber {
			var delta mat.VecDense
			if err := chol.SolveVecTo(&delta, &gradient); err == nil {
				step := mat.Col(nil, 0, &delta)
				if utils.IsFinite(step...) {
					return step, lambda, nil
				}
			}
		}

		if lambda == 0 {
			lambda = initialDampingScale * scale
		} else {
			lambda *= dampingGrowth
		}
		if gn.logger != nil {
			gn.logger.Debugw("escalating damping", "try", try, "lambda", lambda)
		}
	}
	return nil, 0, NewDegenerateSystemError("normal equations stayed singular after %d damping attempts", gn.conf.MaxDampingTries)
}
