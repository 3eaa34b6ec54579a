package qtbirds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStandardDynamicsIsValid(t *testing.T) {
	dyn, err := StandardDynamics(0.7, 1.3, 0.2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, dyn.NChar)
	assert.Equal(t, 0.2, dyn.JumpRate)
	r, c := dyn.MolQ.Dims()
	assert.Equal(t, NMolStates, r)
	assert.Equal(t, NMolStates, c)
}

func TestGeneratorRowSums(t *testing.T) {
	q := NewSymmetricQ(4, 2.5)
	for i := 0; i < 4; i++ {
		sum := 0.
		for j := 0; j < 4; j++ {
			sum += q.At(i, j)
		}
		assert.InDelta(t, 0., sum, 1e-12)
	}
}

func TestJumpRowSums(t *testing.T) {
	p := NewUniformJump(4)
	for i := 0; i < 4; i++ {
		sum := 0.
		for j := 0; j < 4; j++ {
			sum += p.At(i, j)
		}
		assert.InDelta(t, 1., sum, 1e-12)
	}
}

func TestNewModelDynamicsRejectsBadGenerator(t *testing.T) {
	q := NewSymmetricQ(NMolStates, 1.)
	q.Set(0, 0, 5.) // row no longer sums to zero
	_, err := NewModelDynamics(q, NewUniformJump(NMolStates), NewSymmetricQ(2, 1.), NewUniformJump(2), 0., IdentityEmission(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "molecular generator")
}

func TestNewModelDynamicsRejectsNegativeOffDiagonal(t *testing.T) {
	q := mat.NewDense(2, 2, []float64{1, -1, -1, 1})
	_, err := NewModelDynamics(NewSymmetricQ(NMolStates, 1.), NewUniformJump(NMolStates), q, NewUniformJump(2), 0., IdentityEmission(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "character generator")
}

func TestNewModelDynamicsRejectsNonStochasticJump(t *testing.T) {
	j := mat.NewDense(NMolStates, NMolStates, nil)
	_, err := NewModelDynamics(NewSymmetricQ(NMolStates, 1.), j, NewSymmetricQ(2, 1.), NewUniformJump(2), 0., IdentityEmission(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "molecular jump matrix")
}

func TestNewModelDynamicsRejectsNegativeJumpRate(t *testing.T) {
	_, err := StandardDynamics(1., 1., -0.5, 2)
	assert.Error(t, err)
}

func TestNewModelDynamicsRejectsBadEmissionRow(t *testing.T) {
	em := [][]float64{{1, 0}, {0}}
	_, err := NewModelDynamics(NewSymmetricQ(NMolStates, 1.), NewUniformJump(NMolStates), NewSymmetricQ(2, 1.), NewUniformJump(2), 0., em)
	assert.Error(t, err)
}

func TestEmissionVector(t *testing.T) {
	dyn, err := StandardDynamics(1., 1., 0., 3)
	require.NoError(t, err)
	v := dyn.EmissionVector(1)
	require.NotNil(t, v)
	assert.Equal(t, []float64{0, 1, 0}, vecData(v))
	assert.Nil(t, dyn.EmissionVector(3))
	assert.Nil(t, dyn.EmissionVector(-1))
}
