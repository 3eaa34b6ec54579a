package qtbirds

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

//frozenDynamics is the do-nothing model: zero generators, identity jump
//kernels, zero jump rate. Evolution under it is the identity.
func frozenDynamics(t *testing.T) *ModelDynamics {
	t.Helper()
	dyn, err := NewModelDynamics(
		mat.NewDense(NMolStates, NMolStates, nil),
		SetIdentityMatrix(NMolStates),
		mat.NewDense(2, 2, nil),
		SetIdentityMatrix(2),
		0.,
		IdentityEmission(2),
	)
	require.NoError(t, err)
	return dyn
}

func pairTree(t *testing.T, seqA, seqB []int, charA, charB int, age float64) *Node {
	t.Helper()
	n, err := NewNode(NewLeaf(0, charA, seqA, 0.), NewLeaf(1, charB, seqB, 0.), age)
	require.NoError(t, err)
	return n
}

//scenario A: identical observed states under the frozen model leave the
//basis messages untouched, so every contribution is log(1) = 0
func TestCoalesceTwoMatchingLeaves(t *testing.T) {
	dyn := frozenDynamics(t)
	rt := NewAccumulator(1)
	root := Coalesce(pairTree(t, []int{0}, []int{0}, 0, 0, 1.), dyn, rt)

	require.Equal(t, 1, root.NSites())
	assert.True(t, mat.EqualApprox(mat.NewVecDense(4, []float64{1, 0, 0, 0}), root.Messages[0], 1e-12))
	assert.True(t, mat.EqualApprox(mat.NewVecDense(2, []float64{1, 0}), root.CharMessage, 1e-12))
	assert.InDelta(t, 0., root.LogWeight, 1e-12)
	assert.InDelta(t, 0., rt.LogWeight, 1e-12)
	assert.Equal(t, 1, rt.Checkpoints)
}

//scenario B: conflicting observed states under the frozen model zero out
//the merged message; the particle dies but nothing panics
func TestCoalesceConflictingLeavesGoZero(t *testing.T) {
	dyn := frozenDynamics(t)
	rt := NewAccumulator(1)
	root := Coalesce(pairTree(t, []int{0}, []int{1}, 0, 0, 1.), dyn, rt)

	assert.True(t, math.IsInf(root.LogWeight, -1))
	assert.True(t, math.IsInf(rt.LogWeight, -1))
	assert.Equal(t, 1, rt.Checkpoints)
}

//scenario C: the root log-weight of a balanced four-leaf tree is the sum
//of the two intermediate merges' contributions plus the final merge's own
func TestCoalesceFourLeafAdditivity(t *testing.T) {
	dyn, err := StandardDynamics(0.5, 0.8, 0., 2)
	require.NoError(t, err)
	mkPair := func(i, j int, chi, chj int) *Node {
		n, err := NewNode(NewLeaf(i, chi, []int{0, 2}, 0.), NewLeaf(j, chj, []int{1, 2}, 0.), 1.)
		require.NoError(t, err)
		return n
	}
	left := mkPair(0, 1, 0, 1)
	right := mkPair(2, 3, 1, 1)
	full, err := NewNode(left, right, 2.)
	require.NoError(t, err)

	rt := NewAccumulator(1)
	root := Coalesce(full, dyn, rt)
	require.False(t, math.IsInf(root.LogWeight, -1))

	lw := Coalesce(left, dyn, NewAccumulator(2))
	rw := Coalesce(right, dyn, NewAccumulator(3))
	pair := &WeightedNode{Left: lw, Right: rw, LogWeight: lw.LogWeight + rw.LogWeight, age: 2.}
	again := coalesceTwig(pair, dyn, NewAccumulator(4))

	assert.InDelta(t, root.LogWeight, again.LogWeight, 1e-10)
	// the runtime saw exactly the root cumulative weight as its summed deltas
	assert.InDelta(t, root.LogWeight, rt.LogWeight, 1e-10)
	assert.Equal(t, 3, rt.Checkpoints)
}

//swapping the two children of every node changes neither the merged
//messages nor the total log-weight
func TestCoalesceIsCommutative(t *testing.T) {
	dyn, err := StandardDynamics(1.2, 0.4, 0., 2)
	require.NoError(t, err)
	a := NewLeaf(0, 0, []int{0, 3, 1}, 0.)
	b := NewLeaf(1, 1, []int{2, 3, 1}, 0.25)
	ab, err := NewNode(a, b, 1.)
	require.NoError(t, err)
	ba, err := NewNode(b, a, 1.)
	require.NoError(t, err)

	rootAB := Coalesce(ab, dyn, NewAccumulator(1))
	rootBA := Coalesce(ba, dyn, NewAccumulator(1))
	assert.InDelta(t, rootAB.LogWeight, rootBA.LogWeight, 1e-10)
	for i := range rootAB.Messages {
		assert.True(t, mat.EqualApprox(rootAB.Messages[i], rootBA.Messages[i], 1e-10))
	}
	assert.True(t, mat.EqualApprox(rootAB.CharMessage, rootBA.CharMessage, 1e-10))
}

func TestCoalesceCaterpillarTerminates(t *testing.T) {
	dyn, err := StandardDynamics(1., 1., 0.5, 2)
	require.NoError(t, err)
	var tr Tree = NewLeaf(0, 0, []int{0, 1}, 0.)
	for i := 1; i < 6; i++ {
		next, err := NewNode(tr, NewLeaf(i, i%2, []int{0, 1}, 0.), float64(i))
		require.NoError(t, err)
		tr = next
	}
	rt := NewAccumulator(11)
	root := Coalesce(tr, dyn, rt)
	assert.Equal(t, WeightedLeafKind, root.Kind())
	assert.Equal(t, 2, root.NSites())
	assert.Equal(t, 5, rt.Checkpoints)
}

func TestCoalesceMalformedInputIsNotFatal(t *testing.T) {
	dyn := frozenDynamics(t)

	// a bare tip cannot coalesce
	rt := NewAccumulator(1)
	root := Coalesce(NewLeaf(0, 0, []int{0}, 0.), dyn, rt)
	assert.True(t, math.IsInf(root.LogWeight, -1))
	assert.True(t, math.IsInf(rt.LogWeight, -1))

	// an already-coalesced child where only raw shapes are expected
	wl := NewWeightedLeaf([]*mat.VecDense{OneHot(4, 0)}, OneHot(2, 0), 0., 0.)
	bad := &Node{Left: wl, Right: NewLeaf(1, 0, []int{0}, 0.), age: 1.}
	rt = NewAccumulator(1)
	root = Coalesce(bad, dyn, rt)
	assert.True(t, math.IsInf(root.LogWeight, -1))

	// a malformed subtree kills the particle but the traversal finishes
	inner := &Node{Left: wl, Right: NewLeaf(1, 0, []int{0}, 0.), age: 1.}
	outer := &Node{Left: inner, Right: NewLeaf(2, 0, []int{0}, 0.), age: 2.}
	rt = NewAccumulator(1)
	root = Coalesce(outer, dyn, rt)
	assert.True(t, math.IsInf(root.LogWeight, -1))
	assert.Equal(t, 2, rt.Checkpoints)

	// two dead siblings merge into a dead parent, still without panicking
	inner2 := &Node{Left: wl, Right: NewLeaf(3, 0, []int{0}, 0.), age: 1.}
	both := &Node{Left: inner, Right: inner2, age: 2.}
	rt = NewAccumulator(1)
	root = Coalesce(both, dyn, rt)
	assert.True(t, math.IsInf(root.LogWeight, -1))
	assert.Equal(t, 3, rt.Checkpoints)
}

func TestCoalesceZeroBranchIsIdentity(t *testing.T) {
	// parent infinitesimally above the tips behaves like the identity
	dyn, err := StandardDynamics(3., 3., 0., 2)
	require.NoError(t, err)
	near := pairTree(t, []int{0}, []int{0}, 0, 0, 1e-12)
	root := Coalesce(near, dyn, NewAccumulator(1))
	assert.InDelta(t, 0., root.LogWeight, 1e-9)
}
