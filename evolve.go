package qtbirds

import (
	"gonum.org/v1/gonum/mat"
)

//BranchOperator is the evolution operator for one branch and one process:
//the jump kernel raised to the drawn jump count, followed by the matrix
//exponential of the generator scaled by the branch length. The diffusion
//factor is computed once and shared across jump counts on the same branch.
type BranchOperator struct {
	jump *mat.Dense
	expQ *mat.Dense
	dim  int
}

//NewBranchOperator will precompute expm(q*t) for a branch of length t.
//t = 0 reduces to the identity through the exponential itself, with no
//special casing.
func NewBranchOperator(jump, q *mat.Dense, t float64) *BranchOperator {
	dim, _ := q.Dims()
	var scaled mat.Dense
	scaled.Scale(t, q)
	expQ := mat.NewDense(dim, dim, nil)
	expQ.Exp(&scaled)
	return &BranchOperator{jump: jump, expQ: expQ, dim: dim}
}

//Evolve advances a row-vector message across the branch:
//msg * jump^jumps * expm(q*t). The jump operator is applied before the
//diffusion operator; the order is part of the model.
func (op *BranchOperator) Evolve(msg *mat.VecDense, jumps int) *mat.VecDense {
	var full mat.Dense
	if jumps == 0 {
		full.CloneFrom(op.expQ)
	} else {
		var pow mat.Dense
		pow.Pow(op.jump, jumps)
		full.Mul(&pow, op.expQ)
	}
	res := mat.NewVecDense(op.dim, nil)
	res.MulVec(full.T(), msg)
	return res
}

//EvolveMessage advances a single message across a branch of length t with
//a fixed jump count
func EvolveMessage(msg *mat.VecDense, jumps int, jump, q *mat.Dense, t float64) *mat.VecDense {
	return NewBranchOperator(jump, q, t).Evolve(msg, jumps)
}

//evolveBranch advances every per-site message and the character message of
//one child across its branch. Each site draws its own Poisson jump count
//at the per-site normalized rate jumpRate*t/nsites; the character reuses
//the total of those draws rather than an independent one, coupling the
//phenotype to the molecular jump history.
func evolveBranch(msgs []*mat.VecDense, charMsg *mat.VecDense, dyn *ModelDynamics, t float64, rt Runtime) (evolved []*mat.VecDense, evolvedChar *mat.VecDense) {
	nsites := len(msgs)
	molOp := NewBranchOperator(dyn.MolJump, dyn.MolQ, t)
	totalJumps := 0
	evolved = make([]*mat.VecDense, nsites)
	var lambda float64
	if nsites > 0 {
		lambda = dyn.JumpRate * t / float64(nsites)
	}
	for i, m := range msgs {
		jumps := drawJumps(lambda, rt)
		totalJumps += jumps
		evolved[i] = molOp.Evolve(m, jumps)
	}
	charOp := NewBranchOperator(dyn.CharJump, dyn.CharQ, t)
	evolvedChar = charOp.Evolve(charMsg, totalJumps)
	return
}

//drawJumps draws a compound-process jump count. A rate of zero always
//yields zero without touching the sampler.
func drawJumps(lambda float64, rt Runtime) int {
	if lambda <= 0 {
		return 0
	}
	return int(rt.SamplePoisson(lambda))
}
