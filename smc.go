package qtbirds

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

//Runtime is the boundary with the probabilistic-inference machinery. The
//coalescence engine draws jump counts through it, multiplies the running
//importance weight by exp(logDelta) after every branch merge, and then
//signals that a cross-particle resampling decision point has been
//reached. Implementations decide what, if anything, happens at the
//checkpoint.
type Runtime interface {
	SampleExponential(mean float64) float64
	SamplePoisson(lambda float64) float64
	AdjustWeight(logDelta float64)
	ResamplingCheckpoint()
}

//Accumulator is the single-particle Runtime: it draws variates from its
//own source, sums log-weight deltas, and counts checkpoints without
//synchronizing with anyone.
type Accumulator struct {
	LogWeight   float64
	Checkpoints int
	src         rand.Source
}

//NewAccumulator will set up a runtime accumulator with its own seeded
//random source
func NewAccumulator(seed uint64) *Accumulator {
	return &Accumulator{src: rand.NewSource(seed)}
}

//SampleExponential draws from an exponential distribution with the given
//mean
func (a *Accumulator) SampleExponential(mean float64) float64 {
	d := distuv.Exponential{Rate: 1. / mean, Src: a.src}
	return d.Rand()
}

//SamplePoisson draws a jump count. A rate of zero always yields zero.
func (a *Accumulator) SamplePoisson(lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	d := distuv.Poisson{Lambda: lambda, Src: a.src}
	return d.Rand()
}

//AdjustWeight multiplies the particle's running weight by exp(logDelta)
func (a *Accumulator) AdjustWeight(logDelta float64) {
	a.LogWeight += logDelta
}

//ResamplingCheckpoint records that a merge-level barrier was reached
func (a *Accumulator) ResamplingCheckpoint() {
	a.Checkpoints++
}

//operand is one input of a scheduled merge: either a raw tip or the
//product of an earlier step
type operand struct {
	leaf *Leaf
	step int
}

//MergeStep is one entry of the flattened post-order merge schedule
type MergeStep struct {
	left  operand
	right operand
	age   float64
}

//MergeSchedule flattens a raw Leaf/Node tree into its deterministic
//post-order sequence of merges. All particles share one schedule, which
//is what lets the driver hold every particle at the same merge before
//resampling. Coalesced shapes in the input are a setup bug and are
//rejected here, before any particle runs.
func MergeSchedule(tr Tree) ([]MergeStep, error) {
	var steps []MergeStep
	var walk func(t Tree) (operand, error)
	walk = func(t Tree) (operand, error) {
		switch n := t.(type) {
		case *Leaf:
			return operand{leaf: n, step: -1}, nil
		case *Node:
			l, err := walk(n.Left)
			if err != nil {
				return operand{}, err
			}
			r, err := walk(n.Right)
			if err != nil {
				return operand{}, err
			}
			steps = append(steps, MergeStep{left: l, right: r, age: n.age})
			return operand{step: len(steps) - 1}, nil
		}
		return operand{}, fmt.Errorf("cannot schedule a %s node at age %v; input must be a raw tree", t.Kind(), t.Age())
	}
	root, err := walk(tr)
	if err != nil {
		return nil, err
	}
	if root.leaf != nil {
		return nil, fmt.Errorf("tree is a single tip %s; nothing to coalesce", root.leaf.Label())
	}
	return steps, nil
}

//particle is one independent run of the coalescence: its own sampled
//rates baked into a private ModelDynamics, its own runtime accumulator,
//and its per-step merge products
type particle struct {
	dyn      *ModelDynamics
	rt       *Accumulator
	results  []*WeightedLeaf
	molRate  float64
	charRate float64
	jumpRate float64
}

//SMC runs the sequential-importance-sampling loop: every particle
//executes the same merge schedule over the same topology, and after each
//merge all particles meet at the resampling barrier where they are
//redistributed by relative weight.
type SMC struct {
	Tree       Tree
	NParticles int
	NChar      int
	MolMean    float64
	CharMean   float64
	JumpMean   float64
	PrintFreq  int
	src        *rand.Rand
}

//SMCResult holds the outcome of one run
type SMCResult struct {
	LogZ      float64
	Roots     []*WeightedLeaf
	MolRates  []float64
	CharRates []float64
	JumpRates []float64
}

//InitSMC sets up the driver
func InitSMC(tree Tree, nparticles, nchar int, molMean, charMean, jumpMean float64, printFreq int, seed uint64) *SMC {
	return &SMC{
		Tree:       tree,
		NParticles: nparticles,
		NChar:      nchar,
		MolMean:    molMean,
		CharMean:   charMean,
		JumpMean:   jumpMean,
		PrintFreq:  printFreq,
		src:        rand.New(rand.NewSource(seed)),
	}
}

//Run executes the full filter and returns the marginal-likelihood
//estimate along with the surviving root summaries
func (s *SMC) Run() (*SMCResult, error) {
	sched, err := MergeSchedule(s.Tree)
	if err != nil {
		return nil, err
	}
	if s.NParticles < 1 {
		return nil, fmt.Errorf("need at least one particle, got %d", s.NParticles)
	}
	parts := make([]*particle, s.NParticles)
	for i := range parts {
		p, err := s.newParticle()
		if err != nil {
			return nil, err
		}
		p.results = make([]*WeightedLeaf, len(sched))
		parts[i] = p
	}
	logZ := 0.
	logw := make([]float64, s.NParticles)
	for si, st := range sched {
		for _, p := range parts {
			executeStep(p, st, si)
		}
		// barrier: every particle has finished merge si
		for i, p := range parts {
			logw[i] = p.rt.LogWeight
			p.rt.LogWeight = 0
		}
		logZ += floats.LogSumExp(logw) - math.Log(float64(s.NParticles))
		parts = s.resample(parts, logw)
		if s.PrintFreq > 0 && si%s.PrintFreq == 0 {
			fmt.Println("merge", si, "logZ", logZ, "ess", effectiveSampleSize(logw))
		}
	}
	res := &SMCResult{LogZ: logZ}
	for _, p := range parts {
		res.Roots = append(res.Roots, p.results[len(sched)-1])
		res.MolRates = append(res.MolRates, p.molRate)
		res.CharRates = append(res.CharRates, p.charRate)
		res.JumpRates = append(res.JumpRates, p.jumpRate)
	}
	return res, nil
}

//newParticle samples the three evolutionary rates from their exponential
//priors and builds the particle's private dynamics
func (s *SMC) newParticle() (*particle, error) {
	rt := NewAccumulator(s.src.Uint64())
	molRate := rt.SampleExponential(s.MolMean)
	charRate := rt.SampleExponential(s.CharMean)
	jumpRate := rt.SampleExponential(s.JumpMean)
	dyn, err := StandardDynamics(molRate, charRate, jumpRate, s.NChar)
	if err != nil {
		return nil, err
	}
	return &particle{dyn: dyn, rt: rt, molRate: molRate, charRate: charRate, jumpRate: jumpRate}, nil
}

//executeStep performs merge step si for one particle through the same
//twig primitive the recursive engine uses
func executeStep(p *particle, st MergeStep, si int) {
	left, lbase := resolveOperand(p, st.left)
	right, rbase := resolveOperand(p, st.right)
	pair := &WeightedNode{Left: left, Right: right, LogWeight: lbase + rbase, age: st.age}
	p.results[si] = coalesceTwig(pair, p.dyn, p.rt)
}

func resolveOperand(p *particle, op operand) (Tree, float64) {
	if op.leaf != nil {
		return op.leaf, 0
	}
	res := p.results[op.step]
	return res, res.LogWeight
}

//resample redistributes particles in proportion to their step weights
//using systematic resampling. Tree state is immutable, so duplicated
//particles share their merge products by reference; each survivor gets a
//fresh random source so duplicates diverge on later branches.
func (s *SMC) resample(parts []*particle, logw []float64) []*particle {
	n := len(parts)
	w := normalizeWeights(logw)
	if w == nil {
		// every particle is dead; keep them, the estimate is already -Inf
		return parts
	}
	u := s.src.Float64()
	next := make([]*particle, n)
	cum := 0.
	j := 0
	for i := 0; i < n; i++ {
		target := (float64(i) + u) / float64(n)
		for j < n-1 && cum+w[j] < target {
			cum += w[j]
			j++
		}
		src := parts[j]
		results := make([]*WeightedLeaf, len(src.results))
		copy(results, src.results)
		next[i] = &particle{
			dyn:      src.dyn,
			rt:       NewAccumulator(s.src.Uint64()),
			results:  results,
			molRate:  src.molRate,
			charRate: src.charRate,
			jumpRate: src.jumpRate,
		}
	}
	return next
}

//normalizeWeights converts log-weights to a normalized simplex; nil means
//the total weight collapsed to zero
func normalizeWeights(logw []float64) []float64 {
	tot := floats.LogSumExp(logw)
	if math.IsInf(tot, -1) || math.IsNaN(tot) {
		return nil
	}
	w := make([]float64, len(logw))
	for i, lw := range logw {
		w[i] = math.Exp(lw - tot)
	}
	return w
}

func effectiveSampleSize(logw []float64) float64 {
	w := normalizeWeights(logw)
	if w == nil {
		return 0
	}
	ss := 0.
	for _, wi := range w {
		ss += wi * wi
	}
	return 1. / ss
}
