package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics reports regression quality on both partitions.
type Metrics struct {
	TrainRMSE float64 `json:"train_rmse" yaml:"train_rmse"`
	TestRMSE  float64 `json:"test_rmse" yaml:"test_rmse"`
	TrainMAE  float64 `json:"train_mae" yaml:"train_mae"`
	TestMAE   float64 `json:"test_mae" yaml:"test_mae"`
	TrainR2   float64 `json:"train_r2" yaml:"train_r2"`
	TestR2    float64 `json:"test_r2" yaml:"test_r2"`
	TrainRows int     `json:"train_rows" yaml:"train_rows"`
	TestRows  int     `json:"test_rows" yaml:"test_rows"`
}

// Regression holds the three error measures for one partition.
type Regression struct {
	RMSE float64
	MAE  float64
	R2   float64
}

// Evaluate compares predictions against actual values. R² follows the usual
// convention for a constant target: 1 for a perfect fit, otherwise 0.
func Evaluate(actual, predicted []float64) Regression {
	n := float64(len(actual))
	if n == 0 {
		return Regression{}
	}

	r := Regression{
		RMSE: floats.Distance(actual, predicted, 2) / math.Sqrt(n),
		MAE:  floats.Distance(actual, predicted, 1) / n,
		R2:   stat.RSquaredFrom(predicted, actual, nil),
	}
	if math.IsNaN(r.R2) || math.IsInf(r.R2, 0) {
		if r.RMSE == 0 {
			r.R2 = 1
		} else {
			r.R2 = 0
		}
	}
	return r
}
