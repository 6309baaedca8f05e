package hashing

import (
	"fmt"
	"hash"

	"github.com/pkg/errors"
)

// Algorithm is a stateless digest function with a fixed output length.
// A single Algorithm value is shared by every tree built with it, so
// implementations must be safe for concurrent use.
//
// Hashing is total over its input domain: an implementation that cannot
// produce a digest panics instead of returning an error.
type Algorithm interface {
	// Name is the registry name of the algorithm, e.g. "sha512".
	Name() string

	// OutputLen is the digest length in bytes.
	OutputLen() int

	// Hash returns the digest of data.
	Hash(data []byte) []byte

	// HashPair feeds left and then right into one hash context and returns
	// the digest. No separator is written between the two inputs.
	HashPair(left, right []byte) []byte
}

// streamAlgorithm adapts a hash.Hash constructor.
type streamAlgorithm struct {
	name      string
	outputLen int
	newHash   func() hash.Hash
}

// NewStreamAlgorithm returns an Algorithm that creates a fresh hash.Hash
// from newHash for every call.
func NewStreamAlgorithm(name string, outputLen int, newHash func() hash.Hash) Algorithm {
	return &streamAlgorithm{
		name:      name,
		outputLen: outputLen,
		newHash:   newHash,
	}
}

func (a *streamAlgorithm) Name() string   { return a.name }
func (a *streamAlgorithm) OutputLen() int { return a.outputLen }

func (a *streamAlgorithm) Hash(data []byte) []byte {
	return a.sum(data)
}

func (a *streamAlgorithm) HashPair(left, right []byte) []byte {
	return a.sum(left, right)
}

func (a *streamAlgorithm) sum(parts ...[]byte) []byte {
	h := a.newHash()
	for _, p := range parts {
		if _, err := h.Write(p); err != nil {
			panic(errors.Wrapf(err, "hash algorithm %s failed to absorb input", a.name))
		}
	}
	return a.checked(h.Sum(make([]byte, 0, a.outputLen)))
}

func (a *streamAlgorithm) checked(d []byte) []byte {
	if len(d) != a.outputLen {
		panic(fmt.Errorf("hash algorithm %s produced %d bytes, expected %d", a.name, len(d), a.outputLen))
	}
	return d
}

// variadicAlgorithm adapts functions of the form
// func(data ...[]byte) []byte which hash all arguments in one context.
type variadicAlgorithm struct {
	name      string
	outputLen int
	sum       func(data ...[]byte) []byte
}

// NewVariadicAlgorithm returns an Algorithm backed by a variadic digest
// function such as go-ethereum's crypto.Keccak256.
func NewVariadicAlgorithm(name string, outputLen int, sum func(data ...[]byte) []byte) Algorithm {
	return &variadicAlgorithm{
		name:      name,
		outputLen: outputLen,
		sum:       sum,
	}
}

func (a *variadicAlgorithm) Name() string   { return a.name }
func (a *variadicAlgorithm) OutputLen() int { return a.outputLen }

func (a *variadicAlgorithm) Hash(data []byte) []byte {
	return a.checked(a.sum(data))
}

func (a *variadicAlgorithm) HashPair(left, right []byte) []byte {
	return a.checked(a.sum(left, right))
}

func (a *variadicAlgorithm) checked(d []byte) []byte {
	if len(d) != a.outputLen {
		panic(fmt.Errorf("hash algorithm %s produced %d bytes, expected %d", a.name, len(d), a.outputLen))
	}
	return d
}
