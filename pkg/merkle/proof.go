package merkle

import "bytes"

// Path returns the proof as the flat list [Leaf, Siblings...].
func (p *Proof) Path() [][]byte {
	if p == nil {
		return nil
	}
	path := make([][]byte, 0, len(p.Siblings)+1)
	path = append(path, p.Leaf)
	return append(path, p.Siblings...)
}

// Len returns the number of sibling digests in the proof.
func (p *Proof) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Siblings)
}

// Detach returns a deep copy of the proof that no longer references the tree.
func (p *Proof) Detach() *Proof {
	if p == nil {
		return nil
	}
	siblings := make([][]byte, len(p.Siblings))
	for i, s := range p.Siblings {
		siblings[i] = bytes.Clone(s)
	}
	return &Proof{
		Index:    p.Index,
		Leaf:     bytes.Clone(p.Leaf),
		Siblings: siblings,
	}
}
