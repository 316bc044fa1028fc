package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// stateDim is the size of the filter state, the box in xyah form
	// followed by its velocity
	stateDim = 8
	// measureDim is the size of a measurement, the box in xyah form
	measureDim = 4
)

// ErrFactorize is returned by Update when the projected covariance is not
// positive definite
var ErrFactorize = errors.New("projected covariance is not positive definite")

// DetectBox is a measurement in xyah form
type DetectBox []float32

// StateMean is the 8 element state vector
type StateMean []float32

// StateCov is the 8x8 state covariance
type StateCov struct {
	*mat.Dense
}

// KalmanFilter is a constant velocity model of a bounding box moving
// through xyah space, one frame per time step
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	// motion is the state transition matrix
	motion *mat.Dense
	// observe maps the state into measurement space
	observe *mat.Dense
}

// NewKalmanFilter returns a KalmanFilter whose noise is scaled by the box
// height using the given position and velocity weights
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	motion := mat.NewDense(stateDim, stateDim, nil)
	observe := mat.NewDense(measureDim, stateDim, nil)

	for i := 0; i < stateDim; i++ {
		motion.Set(i, i, 1)
	}

	for i := 0; i < measureDim; i++ {
		motion.Set(i, measureDim+i, 1)
		observe.Set(i, i, 1)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motion:            motion,
		observe:           observe,
	}
}

// stateStd returns the standard deviation of every state element for a box
// of the given height
func (kf *KalmanFilter) stateStd(height, posScale, velScale float32) []float32 {

	pos := posScale * kf.stdWeightPosition * height
	vel := velScale * kf.stdWeightVelocity * height

	return []float32{pos, pos, 1e-2, pos, vel, vel, 1e-5, vel}
}

// diagCov returns a diagonal covariance of the squared deviations
func diagCov(std []float32) *mat.Dense {

	n := len(std)
	cov := mat.NewDense(n, n, nil)

	for i, v := range std {
		cov.Set(i, i, float64(v*v))
	}

	return cov
}

func toFloat64(v []float32) []float64 {

	out := make([]float64, len(v))

	for i, f := range v {
		out[i] = float64(f)
	}

	return out
}

// Initiate sets the state to the measurement at rest with a covariance
// wide enough to let the first updates move it freely
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement DetectBox) {

	copy(mean[:measureDim], measurement[:measureDim])

	for i := measureDim; i < stateDim; i++ {
		mean[i] = 0
	}

	covariance.Dense = diagCov(kf.stateStd(measurement[3], 2, 10))
}

// Predict advances the state by one frame
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	// noise uses the height before the step
	noise := diagCov(kf.stateStd(mean[3], 1, 1))

	var next mat.VecDense
	next.MulVec(kf.motion, mat.NewVecDense(stateDim, toFloat64(mean)))

	for i := 0; i < stateDim; i++ {
		mean[i] = float32(next.AtVec(i))
	}

	var cov mat.Dense
	cov.Product(kf.motion, covariance.Dense, kf.motion.T())
	cov.Add(&cov, noise)

	covariance.Dense = &cov
}

// Update corrects the state with a measurement
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement DetectBox) error {

	projected, innovCov := kf.project(mean, covariance)

	var chol mat.Cholesky

	if ok := chol.Factorize(innovCov); !ok {
		return ErrFactorize
	}

	// the gain K is solved in transposed form, S K' = H P'
	var pht mat.Dense
	pht.Mul(covariance.Dense, kf.observe.T())

	var gainT mat.Dense

	if err := chol.SolveTo(&gainT, pht.T()); err != nil {
		return fmt.Errorf("error computing kalman gain: %w", err)
	}

	innovation := make([]float64, measureDim)

	for i := range innovation {
		innovation[i] = float64(measurement[i] - projected[i])
	}

	var delta mat.VecDense
	delta.MulVec(gainT.T(), mat.NewVecDense(measureDim, innovation))

	for i := 0; i < stateDim; i++ {
		mean[i] += float32(delta.AtVec(i))
	}

	// P = P - K S K'
	var correction mat.Dense
	correction.Product(gainT.T(), innovCov, &gainT)

	var cov mat.Dense
	cov.Sub(covariance.Dense, &correction)

	covariance.Dense = &cov

	return nil
}

// project maps the state into measurement space returning the projected
// mean and the innovation covariance
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) ([]float32, *mat.SymDense) {

	pos := kf.stdWeightPosition * mean[3]
	noise := []float32{pos, pos, 1e-1, pos}

	var z mat.VecDense
	z.MulVec(kf.observe, mat.NewVecDense(stateDim, toFloat64(mean)))

	var hph mat.Dense
	hph.Product(kf.observe, covariance.Dense, kf.observe.T())

	innovCov := mat.NewSymDense(measureDim, nil)

	for i := 0; i < measureDim; i++ {
		for j := i; j < measureDim; j++ {
			innovCov.SetSym(i, j, hph.At(i, j))
		}

		innovCov.SetSym(i, i, innovCov.At(i, i)+float64(noise[i]*noise[i]))
	}

	projected := make([]float32, measureDim)

	for i := range projected {
		projected[i] = float32(z.AtVec(i))
	}

	return projected, innovCov
}
