package joint

import "gonum.org/v1/gonum/num/quat"

// IntegrateQuat applies q ← q ⊗ exp(½·ω·dt) to q = [w x y z] in place and
// renormalizes. ω is expressed in the local frame of q.
func IntegrateQuat(q []float64, omega [3]float64, dt float64) {
	half := quat.Number{
		Imag: 0.5 * dt * omega[0],
		Jmag: 0.5 * dt * omega[1],
		Kmag: 0.5 * dt * omega[2],
	}
	r := quat.Mul(toNumber(q), quat.Exp(half))
	fromNumber(q, r)
	normalizeQuat(q)
}

// Rotate returns v rotated by the unit quaternion q (local to world).
func Rotate(q []float64, v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	n := toNumber(q)
	r := quat.Mul(quat.Mul(n, p), quat.Conj(n))
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

// RotateInv returns v rotated by the inverse of q (world to local).
func RotateInv(q []float64, v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	n := toNumber(q)
	r := quat.Mul(quat.Mul(quat.Conj(n), p), n)
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

func QuatNorm(q []float64) float64 {
	return quat.Abs(toNumber(q))
}

func normalizeQuat(q []float64) {
	n := QuatNorm(q)
	if n == 0 {
		q[0], q[1], q[2], q[3] = 1, 0, 0, 0
		return
	}
	for i := range q[:4] {
		q[i] /= n
	}
}

func toNumber(q []float64) quat.Number {
	return quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
}

func fromNumber(q []float64, n quat.Number) {
	q[0], q[1], q[2], q[3] = n.Real, n.Imag, n.Jmag, n.Kmag
}
