package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestKalmanFilter checks a full initiate, predict and update cycle against
// reference values
func TestKalmanFilter(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	// Initial state mean and covariance
	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	measurement := DetectBox{100.0, 200.0, 1.0, 50.0}

	// Initialize the filter
	kf.Initiate(mean, covariance, measurement)

	expectedMeanInit := StateMean{100.0, 200.0, 1.0, 50.0, 0.0, 0.0, 0.0, 0.0}

	expectedCovarianceInit := mat.NewDense(8, 8, []float64{
		25.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 25.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 9.999999747378752e-05, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 25.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 9.999999439624929e-11, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 9.765625,
	})

	assert.InDeltaSlice(t, expectedMeanInit, mean, 1e-4)
	assert.True(t, mat.EqualApprox(expectedCovarianceInit, covariance, 1e-4), "covariance\n%v",
		mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)))

	// Predict the next state
	kf.Predict(mean, covariance)

	expectedMeanPredict := StateMean{100.0, 200.0, 1.0, 50.0, 0.0, 0.0, 0.0, 0.0}
	expectedCovariancePredict := mat.NewDense(8, 8, []float64{
		41.015625, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0,
		0.0, 41.015625, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0,
		0.0, 0.0, 0.00020000009494756943, 0.0, 0.0, 0.0, 9.999999439624929e-11, 0.0,
		0.0, 0.0, 0.0, 41.015625, 0.0, 0.0, 0.0, 9.765625,
		9.765625, 0.0, 0.0, 0.0, 9.86328125, 0.0, 0.0, 0.0,
		0.0, 9.765625, 0.0, 0.0, 0.0, 9.86328125, 0.0, 0.0,
		0.0, 0.0, 9.999999439624929e-11, 0.0, 0.0, 0.0, 1.9999998879249858e-10, 0.0,
		0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0, 9.86328125,
	})

	assert.InDeltaSlice(t, expectedMeanPredict, mean, 1e-4)
	assert.True(t, mat.EqualApprox(expectedCovariancePredict, covariance, 1e-4), "covariance\n%v",
		mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)))

	// New measurement
	measurement = DetectBox{105.0, 205.0, 1.1, 55.0}

	// Update the filter with the new measurement
	require.NoError(t, kf.Update(mean, covariance, measurement))

	expectedMeanUpdate := StateMean{104.338844, 204.338837, 1.001961, 54.338844, 1.033058, 1.033058, 0.0, 1.033058}
	expectedCovarianceUpdate := mat.NewDense(8, 8, []float64{
		5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873, 0.0, 0.0, 0.0,
		0.0, 5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873, 0.0, 0.0,
		0.0, 0.0, 0.00019607852290531608, 0.0, 0.0, 0.0, 9.803920941585902e-11, 0.0,
		0.0, 0.0, 0.0, 5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873,
		1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521, 0.0, 0.0, 0.0,
		0.0, 1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521, 0.0, 0.0,
		0.0, 0.0, 9.803920941585902e-11, 0.0, 0.0, 0.0, 1.9999998781210662e-10, 0.0,
		0.0, 0.0, 0.0, 1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521,
	})

	assert.InDeltaSlice(t, expectedMeanUpdate, mean, 1e-4)
	assert.True(t, mat.EqualApprox(expectedCovarianceUpdate, covariance, 1e-4), "covariance\n%v",
		mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)))
}

func TestKalmanFilterPredictMovesWithVelocity(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	mean := StateMean{10, 20, 0.5, 40, 2, -1, 0, 0.5}
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Predict(mean, covariance)

	assert.InDeltaSlice(t, StateMean{12, 19, 0.5, 40.5, 2, -1, 0, 0.5}, mean, 1e-6)

	// process noise is added on the diagonal using the height before the step
	pos := float64(float32(1.0/20) * 40)
	assert.InDelta(t, pos*pos, covariance.At(0, 0), 1e-4)
}

func TestKalmanFilterUpdateDegenerate(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	// zero height leaves the projected covariance singular
	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	err := kf.Update(mean, covariance, DetectBox{1, 1, 1, 1})
	assert.ErrorIs(t, err, ErrFactorize)
}
