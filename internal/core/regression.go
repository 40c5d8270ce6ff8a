package core

import (
	"carbonsense/internal/domain/model"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fitScaler computes per-column mean and population standard deviation.
// Constant columns get a scale of 1 so they transform to zero.
func fitScaler(rows [][]float64) model.ScalerParams {
	if len(rows) == 0 {
		return model.ScalerParams{}
	}
	cols := len(rows[0])
	params := model.ScalerParams{
		Mean:  make([]float64, cols),
		Scale: make([]float64, cols),
	}
	column := make([]float64, len(rows))
	for j := 0; j < cols; j++ {
		for i, r := range rows {
			column[i] = r[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std < 1e-12 || math.IsNaN(std) {
			std = 1
		}
		params.Mean[j] = mean
		params.Scale[j] = std
	}
	return params
}

func transform(s model.ScalerParams, row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// fitRidge solves (XᵀX + λI)β = Xᵀy over scaled features with an unpenalized intercept.
func fitRidge(x [][]float64, y []float64, lambda float64) (model.RegressorParams, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return model.RegressorParams{}, fmt.Errorf("ridge fit needs matching non-empty inputs, got %d rows and %d targets", n, len(y))
	}
	p := len(x[0])

	design := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	target := mat.NewVecDense(n, y)

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 1; j <= p; j++ {
		gram.Set(j, j, gram.At(j, j)+lambda)
	}
	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &moment); err != nil {
		return model.RegressorParams{}, fmt.Errorf("failed to solve ridge system: %w", err)
	}

	params := model.RegressorParams{
		Intercept:    beta.AtVec(0),
		Coefficients: make([]float64, p),
	}
	for j := 0; j < p; j++ {
		params.Coefficients[j] = beta.AtVec(j + 1)
	}
	return params, nil
}

func predictLinear(r model.RegressorParams, scaled []float64) float64 {
	return r.Intercept + mat.Dot(mat.NewVecDense(len(scaled), scaled), mat.NewVecDense(len(r.Coefficients), r.Coefficients))
}

// rSquared scores predictions against observations; a constant target scores 0.
func rSquared(estimates, values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	if stat.Variance(values, nil) == 0 {
		return 0
	}
	return stat.RSquaredFrom(estimates, values, nil)
}
