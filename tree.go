package qtbirds

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

//TreeKind identifies which of the four tree variants a value holds
type TreeKind int

//the four mutually exclusive shapes a subtree can be in during coalescence
const (
	LeafKind TreeKind = iota
	NodeKind
	WeightedLeafKind
	WeightedNodeKind
)

func (k TreeKind) String() string {
	switch k {
	case LeafKind:
		return "Leaf"
	case NodeKind:
		return "Node"
	case WeightedLeafKind:
		return "WeightedLeaf"
	case WeightedNodeKind:
		return "WeightedNode"
	}
	return "unknown"
}

//Tree is the closed sum type over the four node shapes. Ages are measured
//as time before present, so the root carries the largest age and tips the
//smallest. Only the four variants in this package implement it.
type Tree interface {
	Kind() TreeKind
	Age() float64
	Label() string
	treeVariant()
}

//Leaf is an observed tip: a character state, a molecular sequence coded as
//integer states, and an age. Immutable once constructed.
type Leaf struct {
	Index     int
	CharState int
	Sequence  []int
	age       float64
}

//NewLeaf will construct an observed tip
func NewLeaf(index, charState int, sequence []int, age float64) *Leaf {
	return &Leaf{Index: index, CharState: charState, Sequence: sequence, age: age}
}

func (l *Leaf) Kind() TreeKind { return LeafKind }
func (l *Leaf) Age() float64   { return l.age }
func (l *Leaf) Label() string  { return strconv.Itoa(l.Index) }
func (l *Leaf) treeVariant()   {}

//Node is an internal branching point that has not been processed yet. Its
//age must be strictly greater than the age of either child.
type Node struct {
	Left  Tree
	Right Tree
	age   float64
}

//NewNode will pair two subtrees under a parent age, checking that both
//branch lengths are strictly positive
func NewNode(left, right Tree, age float64) (*Node, error) {
	if left.Age() >= age {
		return nil, fmt.Errorf("node age %v is not older than left child %s at age %v", age, left.Label(), left.Age())
	}
	if right.Age() >= age {
		return nil, fmt.Errorf("node age %v is not older than right child %s at age %v", age, right.Label(), right.Age())
	}
	return &Node{Left: left, Right: right, age: age}, nil
}

func (n *Node) Kind() TreeKind { return NodeKind }
func (n *Node) Age() float64   { return n.age }
func (n *Node) Label() string  { return "(" + n.Left.Label() + "," + n.Right.Label() + ")" }
func (n *Node) treeVariant()   {}

//WeightedLeaf is the summary left behind after a subtree has coalesced:
//one likelihood message per molecular site, one character message, and the
//cumulative log-weight of everything merged beneath it.
type WeightedLeaf struct {
	Messages    []*mat.VecDense
	CharMessage *mat.VecDense
	LogWeight   float64
	age         float64
}

//NewWeightedLeaf will construct a coalesced summary from its message
//vectors and cumulative log-weight. The vectors are stored as given.
func NewWeightedLeaf(messages []*mat.VecDense, charMessage *mat.VecDense, logWeight, age float64) *WeightedLeaf {
	return &WeightedLeaf{Messages: messages, CharMessage: charMessage, LogWeight: logWeight, age: age}
}

func (w *WeightedLeaf) Kind() TreeKind { return WeightedLeafKind }
func (w *WeightedLeaf) Age() float64   { return w.age }
func (w *WeightedLeaf) Label() string  { return "coal@" + strconv.FormatFloat(w.age, 'g', 6, 64) }
func (w *WeightedLeaf) treeVariant()   {}

//NSites will return the number of per-site messages held by the summary
func (w *WeightedLeaf) NSites() int { return len(w.Messages) }

//WeightedNode pairs two children that are ready to merge (raw tips or
//coalesced summaries) and carries the pre-merge baseline log-weight of the
//subtree, i.e. the sum of whatever its children accumulated.
type WeightedNode struct {
	Left      Tree
	Right     Tree
	LogWeight float64
	age       float64
}

//NewWeightedNode will pair two merge-ready children under a parent age
func NewWeightedNode(left, right Tree, logWeight, age float64) (*WeightedNode, error) {
	if left.Age() >= age {
		return nil, fmt.Errorf("weighted node age %v is not older than left child %s at age %v", age, left.Label(), left.Age())
	}
	if right.Age() >= age {
		return nil, fmt.Errorf("weighted node age %v is not older than right child %s at age %v", age, right.Label(), right.Age())
	}
	return &WeightedNode{Left: left, Right: right, LogWeight: logWeight, age: age}, nil
}

func (w *WeightedNode) Kind() TreeKind { return WeightedNodeKind }
func (w *WeightedNode) Age() float64   { return w.age }
func (w *WeightedNode) Label() string  { return "pair@" + strconv.FormatFloat(w.age, 'g', 6, 64) }
func (w *WeightedNode) treeVariant()   {}
