// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernels

import (
	"gonum.org/v1/gonum/mat"

	"github.com/twinleaf/trendline/internal/contracts"
)

// svdTol is the relative singular-value cutoff used by leastSquaresSVD,
// mirroring the 1e-10 tolerance the original detrend fit used for its
// SVD-based pseudo-inverse solve.
const svdTol = 1e-10

// Detrend dispatches to the configured detrend method, matching
// the shape of the original pipeline's calculate_and_distribute switch.
func Detrend(method contracts.DetrendMethod, y []float64) []float64 {
	switch method {
	case contracts.DetrendLinear:
		return RemoveLinearTrend(y)
	case contracts.DetrendQuadratic:
		return RemoveQuadraticTrend(y)
	default:
		return RemoveMean(y)
	}
}

// RemoveMean subtracts the arithmetic mean from every sample.
func RemoveMean(y []float64) []float64 {
	n := len(y)
	if n == 0 {
		return nil
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(n)
	out := make([]float64, n)
	for i, v := range y {
		out[i] = v - mean
	}
	return out
}

// RemoveLinearTrend fits y = m*t + c by least squares (t = sample index)
// and subtracts the fitted line.
func RemoveLinearTrend(y []float64) []float64 {
	n := len(y)
	if n == 0 {
		return nil
	}
	a := mat.NewDense(n, 2, nil)
	for r := 0; r < n; r++ {
		a.Set(r, 0, 1)
		a.Set(r, 1, float64(r))
	}
	coeffs, ok := leastSquaresSVD(a, y, svdTol)
	if !ok {
		return RemoveMean(y)
	}
	c, m := coeffs[0], coeffs[1]
	out := make([]float64, n)
	for i, v := range y {
		t := float64(i)
		out[i] = v - (m*t + c)
	}
	return out
}

// RemoveQuadraticTrend fits y = a*t^2 + b*t + c by least squares and
// subtracts the fitted curve. Falls back to a linear fit for n < 3
// samples, matching the original pipeline's behavior when there is not
// enough data to determine a quadratic.
func RemoveQuadraticTrend(y []float64) []float64 {
	n := len(y)
	if n < 3 {
		return RemoveLinearTrend(y)
	}
	a := mat.NewDense(n, 3, nil)
	for r := 0; r < n; r++ {
		t := float64(r)
		a.Set(r, 0, 1)
		a.Set(r, 1, t)
		a.Set(r, 2, t*t)
	}
	coeffs, ok := leastSquaresSVD(a, y, svdTol)
	if !ok {
		return RemoveLinearTrend(y)
	}
	c, b, aCoeff := coeffs[0], coeffs[1], coeffs[2]
	out := make([]float64, n)
	for i, v := range y {
		t := float64(i)
		out[i] = v - (aCoeff*t*t + b*t + c)
	}
	return out
}

// leastSquaresSVD solves the (possibly rank-deficient) least-squares
// problem A*x = b via an SVD-based pseudo-inverse: singular values below
// tol (relative to the largest) are treated as zero, exactly as the
// original fit's `svd.solve(&b, 1e-10)` tolerance did. ok is false if A
// could not be factorized at all.
func leastSquaresSVD(a *mat.Dense, b []float64, tol float64) ([]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, false
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return nil, false
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	_, cols := a.Dims()
	bVec := mat.NewVecDense(len(b), b)

	utb := mat.NewVecDense(cols, nil)
	utb.MulVec(u.T(), bVec)

	y := mat.NewVecDense(cols, nil)
	sigmaMax := values[0]
	for i := 0; i < cols; i++ {
		if values[i] > tol*sigmaMax {
			y.SetVec(i, utb.AtVec(i)/values[i])
		}
	}

	x := mat.NewVecDense(cols, nil)
	x.MulVec(&v, y)

	out := make([]float64, cols)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, true
}
