package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SingularValues returns the singular values of m in decreasing order.
func SingularValues(m mat.Matrix) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return nil, errors.New("analysis: svd did not converge")
	}
	return svd.Values(nil), nil
}

// Condition is the 2-norm condition number of m, +Inf when m is singular.
func Condition(m mat.Matrix) float64 {
	s, err := SingularValues(m)
	if err != nil || len(s) == 0 {
		return math.Inf(1)
	}
	lo := s[len(s)-1]
	if lo == 0 {
		return math.Inf(1)
	}
	return s[0] / lo
}

// ColumnNorms returns the Euclidean norm of every column of m. Zero norms
// flag inputs with no influence on the output, such as the scalar part of
// a quaternion.
func ColumnNorms(m mat.Matrix) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = floats.Norm(mat.Col(nil, j, m), 2)
	}
	return out
}
