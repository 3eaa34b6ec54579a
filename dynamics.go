package qtbirds

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//NMolStates is the size of the molecular state space
const NMolStates = 4

const stochTol = 1e-9

//ModelDynamics bundles the evolutionary-process parameters shared
//read-only across one particle's whole traversal: the two generator
//matrices (already scaled by their sampled rates), the two jump-transition
//kernels, the joint compound jump rate, and the emission table mapping an
//observed character state to its initial likelihood vector.
type ModelDynamics struct {
	MolQ     *mat.Dense
	MolJump  *mat.Dense
	CharQ    *mat.Dense
	CharJump *mat.Dense
	JumpRate float64
	Emission [][]float64
	NChar    int
}

//NewModelDynamics will validate and assemble the parameter bundle. All
//violations here are configuration errors and must be caught before any
//particle begins traversal.
func NewModelDynamics(molQ, molJump, charQ, charJump *mat.Dense, jumpRate float64, emission [][]float64) (*ModelDynamics, error) {
	if err := checkGenerator("molecular generator", molQ, NMolStates); err != nil {
		return nil, err
	}
	if err := checkStochastic("molecular jump matrix", molJump, NMolStates); err != nil {
		return nil, err
	}
	k, _ := charQ.Dims()
	if err := checkGenerator("character generator", charQ, k); err != nil {
		return nil, err
	}
	if err := checkStochastic("character jump matrix", charJump, k); err != nil {
		return nil, err
	}
	if jumpRate < 0 {
		return nil, fmt.Errorf("joint jump rate is negative: %v", jumpRate)
	}
	for s, row := range emission {
		if len(row) != k {
			return nil, fmt.Errorf("emission row for state %d has length %d, want %d", s, len(row), k)
		}
	}
	return &ModelDynamics{
		MolQ:     molQ,
		MolJump:  molJump,
		CharQ:    charQ,
		CharJump: charJump,
		JumpRate: jumpRate,
		Emission: emission,
		NChar:    k,
	}, nil
}

//EmissionVector will return the initial character message for an observed
//state, or nil if the state has no emission row
func (dyn *ModelDynamics) EmissionVector(state int) *mat.VecDense {
	if state < 0 || state >= len(dyn.Emission) {
		return nil
	}
	row := dyn.Emission[state]
	cp := make([]float64, len(row))
	copy(cp, row)
	return mat.NewVecDense(len(cp), cp)
}

func checkGenerator(name string, q *mat.Dense, dim int) (err error) {
	r, c := q.Dims()
	if r != dim || c != dim {
		return fmt.Errorf("%s is %dx%d, want %dx%d", name, r, c, dim, dim)
	}
	for i := 0; i < dim; i++ {
		sum := 0.
		for j := 0; j < dim; j++ {
			v := q.At(i, j)
			if i != j && v < 0 {
				return fmt.Errorf("%s has negative off-diagonal entry %v at (%d,%d)", name, v, i, j)
			}
			sum += v
		}
		if math.Abs(sum) > stochTol {
			return fmt.Errorf("%s row %d sums to %v, want 0", name, i, sum)
		}
	}
	return nil
}

func checkStochastic(name string, p *mat.Dense, dim int) (err error) {
	r, c := p.Dims()
	if r != dim || c != dim {
		return fmt.Errorf("%s is %dx%d, want %dx%d", name, r, c, dim, dim)
	}
	for i := 0; i < dim; i++ {
		sum := 0.
		for j := 0; j < dim; j++ {
			v := p.At(i, j)
			if v < 0 {
				return fmt.Errorf("%s has negative entry %v at (%d,%d)", name, v, i, j)
			}
			sum += v
		}
		if math.Abs(sum-1.) > stochTol {
			return fmt.Errorf("%s row %d sums to %v, want 1", name, i, sum)
		}
	}
	return nil
}

//NewSymmetricQ will build a symmetric generator with equal exchange rates
//between all state pairs, scaled so that the total leaving rate of each
//state is rate
func NewSymmetricQ(dim int, rate float64) *mat.Dense {
	q := mat.NewDense(dim, dim, nil)
	off := rate / float64(dim-1)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if i == j {
				q.Set(i, j, -rate)
			} else {
				q.Set(i, j, off)
			}
		}
	}
	return q
}

//NewUniformJump will build a jump kernel that moves to each of the other
//states with equal probability
func NewUniformJump(dim int) *mat.Dense {
	p := mat.NewDense(dim, dim, nil)
	off := 1. / float64(dim-1)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if i != j {
				p.Set(i, j, off)
			}
		}
	}
	return p
}

//IdentityEmission will build the one-hot emission table for k observable
//character states
func IdentityEmission(k int) [][]float64 {
	e := make([][]float64, k)
	for s := 0; s < k; s++ {
		row := make([]float64, k)
		row[s] = 1.
		e[s] = row
	}
	return e
}

//StandardDynamics will assemble the default model from three sampled
//rates: symmetric generators, uniform jump kernels, one-hot emissions
func StandardDynamics(molRate, charRate, jumpRate float64, k int) (*ModelDynamics, error) {
	return NewModelDynamics(
		NewSymmetricQ(NMolStates, molRate),
		NewUniformJump(NMolStates),
		NewSymmetricQ(k, charRate),
		NewUniformJump(k),
		jumpRate,
		IdentityEmission(k),
	)
}
