package qtbirds

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

//Coalesce reduces a binary tree to a single coalesced summary by merging
//sibling subtrees bottom-up, reporting each merge's log-weight delta to
//the runtime and raising a resampling checkpoint after every merge. The
//final call on the root yields the WeightedLeaf whose LogWeight is this
//particle's total log-likelihood increment.
//
//A shape that should not occur in well-formed input (an already-coalesced
//child reached directly, or a bare tip at the root) is not fatal: the
//particle's weight is driven to -Inf and a degenerate summary is
//returned, so the outer filter can discard the particle at the next
//resampling instead of aborting the run.
func Coalesce(tr Tree, dyn *ModelDynamics, rt Runtime) *WeightedLeaf {
	n, ok := tr.(*Node)
	if !ok {
		return deadParticle(tr.Age(), rt)
	}
	lk, rk := n.Left.Kind(), n.Right.Kind()
	switch {
	case lk == LeafKind && rk == LeafKind:
		pair := &WeightedNode{Left: n.Left, Right: n.Right, LogWeight: 0, age: n.age}
		return coalesceTwig(pair, dyn, rt)
	case lk == LeafKind && rk == NodeKind:
		rw := Coalesce(n.Right, dyn, rt)
		pair := &WeightedNode{Left: n.Left, Right: rw, LogWeight: rw.LogWeight, age: n.age}
		return coalesceTwig(pair, dyn, rt)
	case lk == NodeKind && rk == LeafKind:
		lw := Coalesce(n.Left, dyn, rt)
		pair := &WeightedNode{Left: lw, Right: n.Right, LogWeight: lw.LogWeight, age: n.age}
		return coalesceTwig(pair, dyn, rt)
	case lk == NodeKind && rk == NodeKind:
		lw := Coalesce(n.Left, dyn, rt)
		rw := Coalesce(n.Right, dyn, rt)
		pair := &WeightedNode{Left: lw, Right: rw, LogWeight: lw.LogWeight + rw.LogWeight, age: n.age}
		return coalesceTwig(pair, dyn, rt)
	}
	return deadParticle(n.age, rt)
}

//coalesceTwig performs one branch merge: evolve both children's messages
//across their branches, combine them site-wise by Hadamard product,
//aggregate the merged messages into this node's log-likelihood term, and
//report the delta over the pre-merge baseline to the runtime.
func coalesceTwig(pair *WeightedNode, dyn *ModelDynamics, rt Runtime) *WeightedLeaf {
	lmsgs, lchar, ok := childMessages(pair.Left, dyn)
	if !ok {
		return deadParticle(pair.age, rt)
	}
	rmsgs, rchar, ok := childMessages(pair.Right, dyn)
	if !ok {
		return deadParticle(pair.age, rt)
	}
	if len(lmsgs) != len(rmsgs) {
		return deadParticle(pair.age, rt)
	}
	if !messagesConform(lmsgs, lchar, dyn) || !messagesConform(rmsgs, rchar, dyn) {
		return deadParticle(pair.age, rt)
	}
	lbr := pair.age - pair.Left.Age()
	rbr := pair.age - pair.Right.Age()
	if lbr < 0 || rbr < 0 {
		return deadParticle(pair.age, rt)
	}
	lev, levChar := evolveBranch(lmsgs, lchar, dyn, lbr, rt)
	rev, revChar := evolveBranch(rmsgs, rchar, dyn, rbr, rt)

	merged := make([]*mat.VecDense, len(lev))
	for i := range lev {
		m := mat.NewVecDense(lev[i].Len(), nil)
		m.MulElemVec(lev[i], rev[i])
		merged[i] = m
	}
	mergedChar := mat.NewVecDense(levChar.Len(), nil)
	mergedChar.MulElemVec(levChar, revChar)

	term := TwigLogLike(merged, mergedChar)
	cum := term + pair.LogWeight
	delta := term
	if math.IsInf(cum, -1) {
		delta = math.Inf(-1)
	}
	rt.AdjustWeight(delta)
	rt.ResamplingCheckpoint()
	return NewWeightedLeaf(merged, mergedChar, cum, pair.age)
}

//childMessages extracts a merge-ready child's current message state: a
//raw tip derives its initial vectors from the observed states and the
//emission table, a coalesced child hands over its stored vectors.
func childMessages(tr Tree, dyn *ModelDynamics) (msgs []*mat.VecDense, charMsg *mat.VecDense, ok bool) {
	switch c := tr.(type) {
	case *Leaf:
		msgs = make([]*mat.VecDense, len(c.Sequence))
		for i, s := range c.Sequence {
			if s < 0 || s >= NMolStates {
				return nil, nil, false
			}
			msgs[i] = OneHot(NMolStates, s)
		}
		charMsg = dyn.EmissionVector(c.CharState)
		if charMsg == nil {
			return nil, nil, false
		}
		return msgs, charMsg, true
	case *WeightedLeaf:
		if c.CharMessage == nil {
			return nil, nil, false
		}
		return c.Messages, c.CharMessage, true
	}
	return nil, nil, false
}

//messagesConform checks that a child's vectors have the model's
//dimensions. Degenerate summaries left behind by an earlier dead merge
//fail here, which keeps them flowing as -Inf instead of panicking inside
//the linear algebra.
func messagesConform(msgs []*mat.VecDense, charMsg *mat.VecDense, dyn *ModelDynamics) bool {
	if charMsg.Len() != dyn.NChar {
		return false
	}
	for _, m := range msgs {
		if m.Len() != NMolStates {
			return false
		}
	}
	return true
}

//deadParticle reports a zero-likelihood event and returns a degenerate
//summary carrying -Inf, so the traversal can keep going
func deadParticle(age float64, rt Runtime) *WeightedLeaf {
	rt.AdjustWeight(math.Inf(-1))
	rt.ResamplingCheckpoint()
	return NewWeightedLeaf(nil, mat.NewVecDense(1, nil), math.Inf(-1), age)
}
