package fem

// ShearCorrection is the Timoshenko shear coefficient for a rectangular section.
const ShearCorrection = 5.0 / 6.0

// ElementMatrices returns the stiffness and consistent mass matrices of a
// two-node Timoshenko beam element with interdependent interpolation.
//
//	DOFs: [y_i, phi_i, y_j, phi_j]
//
//	(i)=================(j)
//	 |<------- le ------>|     section: b x h
//
// Phi = 12EI/(kappa*G*A*le^2) measures shear flexibility; with Phi -> 0 both
// matrices reduce to the Euler-Bernoulli Hermite element.
func ElementMatrices(h, le, b, e, rho, nu float64) (ke, me [4][4]float64) {
	area := b * h
	inertia := b * h * h * h / 12
	shear := e / (2 * (1 + nu))
	phi := 12 * e * inertia / (ShearCorrection * shear * area * le * le)

	// stiffness
	c := e * inertia / ((1 + phi) * le * le * le)
	l2 := le * le
	ke[0][0] = 12 * c
	ke[0][1] = 6 * le * c
	ke[0][2] = -12 * c
	ke[0][3] = 6 * le * c
	ke[1][1] = (4 + phi) * l2 * c
	ke[1][2] = -6 * le * c
	ke[1][3] = (2 - phi) * l2 * c
	ke[2][2] = 12 * c
	ke[2][3] = -6 * le * c
	ke[3][3] = (4 + phi) * l2 * c

	// translational inertia
	p2 := phi * phi
	mt := rho * area * le / ((1 + phi) * (1 + phi))
	t11 := 13.0/35 + 7*phi/10 + p2/3
	t12 := (11.0/210 + 11*phi/120 + p2/24) * le
	t13 := 9.0/70 + 3*phi/10 + p2/6
	t14 := (13.0/420 + 3*phi/40 + p2/24) * le
	t22 := (1.0/105 + phi/60 + p2/120) * l2
	t24 := (1.0/140 + phi/60 + p2/120) * l2

	// rotary inertia
	mr := rho * inertia / ((1 + phi) * (1 + phi) * le)
	r11 := 6.0 / 5
	r12 := (1.0/10 - phi/2) * le
	r22 := (2.0/15 + phi/6 + p2/3) * l2
	r24 := (-1.0/30 - phi/6 + p2/6) * l2

	me[0][0] = mt*t11 + mr*r11
	me[0][1] = mt*t12 + mr*r12
	me[0][2] = mt*t13 - mr*r11
	me[0][3] = -mt*t14 + mr*r12
	me[1][1] = mt*t22 + mr*r22
	me[1][2] = mt*t14 - mr*r12
	me[1][3] = -mt*t24 + mr*r24
	me[2][2] = mt*t11 + mr*r11
	me[2][3] = -mt*t12 - mr*r12
	me[3][3] = mt*t22 + mr*r22

	for i := 1; i < 4; i++ {
		for j := 0; j < i; j++ {
			ke[i][j] = ke[j][i]
			me[i][j] = me[j][i]
		}
	}
	return ke, me
}
