package qtbirds

import (
	"fmt"
	"strconv"
	"strings"
)

//parse tree: the intermediate shape produced by the newick scanner before
//ages are assigned and tip data attached
type ptree struct {
	name     string
	length   float64
	children []*ptree
}

//ReadTree will parse a newick string with branch lengths into the raw
//Leaf/Node tree used as coalescence input. Tip data must be attached
//afterwards with AttachData. Node ages are recovered from the branch
//lengths by setting each node's age to its maximum distance to any tip
//beneath it, so an ultrametric tree gets all tips at age 0.
func ReadTree(nwk string, seqs map[string][]int, chars map[string]int) (Tree, error) {
	nwk = strings.TrimSpace(nwk)
	nwk = strings.TrimSuffix(nwk, ";")
	if nwk == "" {
		return nil, fmt.Errorf("empty newick string")
	}
	pt, rest, err := parseClade(nwk)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return nil, fmt.Errorf("trailing characters after newick tree: %q", rest)
	}
	return buildTree(pt, seqs, chars)
}

func parseClade(s string) (*ptree, string, error) {
	pt := new(ptree)
	if strings.HasPrefix(s, "(") {
		s = s[1:]
		for {
			child, rest, err := parseClade(s)
			if err != nil {
				return nil, "", err
			}
			pt.children = append(pt.children, child)
			s = rest
			if strings.HasPrefix(s, ",") {
				s = s[1:]
				continue
			}
			if strings.HasPrefix(s, ")") {
				s = s[1:]
				break
			}
			return nil, "", fmt.Errorf("unbalanced parentheses in newick near %q", s)
		}
	}
	end := strings.IndexAny(s, ",()")
	var tok string
	if end < 0 {
		tok, s = s, ""
	} else {
		tok, s = s[:end], s[end:]
	}
	name := tok
	if i := strings.Index(tok, ":"); i >= 0 {
		name = tok[:i]
		l, err := strconv.ParseFloat(tok[i+1:], 64)
		if err != nil {
			return nil, "", fmt.Errorf("bad branch length %q for %q: %w", tok[i+1:], name, err)
		}
		pt.length = l
	}
	pt.name = name
	if len(pt.children) == 0 && name == "" {
		return nil, "", fmt.Errorf("unnamed tip in newick near %q", s)
	}
	return pt, s, nil
}

//buildTree assigns ages bottom-up and attaches the per-tip molecular
//sequence and character state. Every tip must have both; every internal
//node must be binary.
func buildTree(pt *ptree, seqs map[string][]int, chars map[string]int) (Tree, error) {
	nsites := -1
	tipIndex := 0
	var build func(p *ptree) (Tree, error)
	build = func(p *ptree) (Tree, error) {
		if len(p.children) == 0 {
			age := tipAge(p) // strips any @age suffix from the name
			seq, ok := seqs[p.name]
			if !ok {
				return nil, fmt.Errorf("tip %q has no molecular sequence", p.name)
			}
			if nsites == -1 {
				nsites = len(seq)
			} else if len(seq) != nsites {
				return nil, fmt.Errorf("tip %q has %d sites, want %d", p.name, len(seq), nsites)
			}
			if nsites == 0 {
				return nil, fmt.Errorf("tip %q has an empty sequence", p.name)
			}
			st, ok := chars[p.name]
			if !ok {
				return nil, fmt.Errorf("tip %q has no character state", p.name)
			}
			l := NewLeaf(tipIndex, st, seq, age)
			tipIndex++
			return l, nil
		}
		if len(p.children) != 2 {
			return nil, fmt.Errorf("node %q has %d children; the tree must be strictly binary", p.name, len(p.children))
		}
		left, err := build(p.children[0])
		if err != nil {
			return nil, err
		}
		right, err := build(p.children[1])
		if err != nil {
			return nil, err
		}
		age := left.Age() + p.children[0].length
		if a := right.Age() + p.children[1].length; a > age {
			age = a
		}
		return NewNode(left, right, age)
	}
	return build(pt)
}

//tipAge returns the age of a tip. Tips sit at the present unless the
//name carries an explicit @age suffix (fossil tips).
func tipAge(p *ptree) float64 {
	if i := strings.Index(p.name, "@"); i >= 0 {
		if a, err := strconv.ParseFloat(p.name[i+1:], 64); err == nil {
			p.name = p.name[:i]
			return a
		}
	}
	return 0
}

var molCode = map[byte]int{'A': 0, 'C': 1, 'G': 2, 'T': 3, 'a': 0, 'c': 1, 'g': 2, 't': 3}

//ReadSequences will read a tab-separated table of name and nucleotide
//sequence, one tip per line
func ReadSequences(path string) (map[string][]int, error) {
	lines, err := ReadLine(path)
	if err != nil {
		return nil, err
	}
	seqs := make(map[string][]int)
	for ln, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s line %d: want name and sequence, got %q", path, ln+1, line)
		}
		seq := make([]int, len(parts[1]))
		for i := 0; i < len(parts[1]); i++ {
			s, ok := molCode[parts[1][i]]
			if !ok {
				return nil, fmt.Errorf("%s line %d: unknown nucleotide %q in %q", path, ln+1, string(parts[1][i]), parts[0])
			}
			seq[i] = s
		}
		seqs[parts[0]] = seq
	}
	if len(seqs) == 0 {
		return nil, fmt.Errorf("%s holds no sequences", path)
	}
	return seqs, nil
}

//ReadCharStates will read a tab-separated table of name and integer
//character state, one tip per line
func ReadCharStates(path string, nchar int) (map[string]int, error) {
	lines, err := ReadLine(path)
	if err != nil {
		return nil, err
	}
	chars := make(map[string]int)
	for ln, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s line %d: want name and state, got %q", path, ln+1, line)
		}
		st, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad character state %q: %w", path, ln+1, parts[1], err)
		}
		if st < 0 || st >= nchar {
			return nil, fmt.Errorf("%s line %d: character state %d out of range [0,%d)", path, ln+1, st, nchar)
		}
		chars[parts[0]] = st
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("%s holds no character states", path)
	}
	return chars, nil
}
