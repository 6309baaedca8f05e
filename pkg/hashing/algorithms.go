package hashing

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	wealdblake2b "github.com/wealdtech/go-merkletree/v2/blake2b"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // kept for compatibility with RIPEMD-160 digests
	"golang.org/x/crypto/sha3"
)

// Registry names
const (
	NameSHA256     = "sha256"
	NameSHA512     = "sha512"
	NameKeccak256  = "keccak256"
	NameSHA3_256   = "sha3-256"
	NameSHA3_512   = "sha3-512"
	NameBlake2b256 = "blake2b-256"
	NameBlake2b512 = "blake2b-512"
	NameRipemd160  = "ripemd160"
	NameBlake3     = "blake3"
	NameBLS12381Fr = "bls12381-fr"
)

// ErrUnknownAlgorithm is returned by ByName for names that are not registered.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// frDomain separates tree digests from any other use of the hash-to-field map.
var frDomain = []byte("FLAT-MERKLE-V01-CS01-with-BLS12381FR_XMD:SHA-256_")

var (
	// SHA256 is SHA-256 from the standard library.
	SHA256 = NewStreamAlgorithm(NameSHA256, sha256.Size, sha256.New)
	// SHA512 is SHA-512 from the standard library. It is the default.
	SHA512 = NewStreamAlgorithm(NameSHA512, sha512.Size, sha512.New)

	// Keccak256 is the legacy Keccak used by Ethereum, not SHA3-256.
	Keccak256 = NewVariadicAlgorithm(NameKeccak256, 32, ethcrypto.Keccak256)

	// SHA3_256 and SHA3_512 are the FIPS 202 SHA-3 functions.
	SHA3_256 = NewStreamAlgorithm(NameSHA3_256, 32, sha3.New256)
	SHA3_512 = NewStreamAlgorithm(NameSHA3_512, 64, sha3.New512)

	// Blake2b256 is unkeyed BLAKE2b with a 32-byte digest.
	Blake2b256 = NewVariadicAlgorithm(NameBlake2b256, 32, wealdblake2b.New().Hash)
	// Blake2b512 is unkeyed BLAKE2b with a 64-byte digest.
	Blake2b512 = NewStreamAlgorithm(NameBlake2b512, blake2b.Size, newBlake2b512)

	// Ripemd160 produces 20-byte digests, as used for script hashes.
	Ripemd160 = NewStreamAlgorithm(NameRipemd160, ripemd160.Size, ripemd160.New)

	// Blake3 is BLAKE3 with the default 32-byte output.
	Blake3 = NewStreamAlgorithm(NameBlake3, 32, func() hash.Hash { return blake3.New() })

	// BLS12381Fr maps the input onto a BLS12-381 scalar field element and
	// returns its canonical 32-byte big-endian encoding.
	BLS12381Fr = NewVariadicAlgorithm(NameBLS12381Fr, fr.Bytes, hashToField)
)

var registry = map[string]Algorithm{}

func init() {
	for _, a := range []Algorithm{
		SHA256, SHA512, Keccak256, SHA3_256, SHA3_512,
		Blake2b256, Blake2b512, Ripemd160, Blake3, BLS12381Fr,
	} {
		registry[a.Name()] = a
	}
}

// Default is the algorithm used when none is configured.
func Default() Algorithm {
	return SHA512
}

// ByName returns the registered algorithm for name. Names are case-insensitive.
func ByName(name string) (Algorithm, error) {
	a, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return a, nil
}

// Names returns the registered algorithm names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newBlake2b512() hash.Hash {
	h, err := blake2b.New512(nil)
	if err != nil {
		// Only a key longer than 64 bytes can fail here.
		panic(fmt.Errorf("BUG: blake2b-512 without key failed: %w", err))
	}
	return h
}

func hashToField(data ...[]byte) []byte {
	elems, err := fr.Hash(bytes.Join(data, nil), frDomain, 1)
	if err != nil {
		panic(errors.Wrap(err, "bls12381-fr hash to field failed"))
	}
	b := elems[0].Bytes()
	return b[:]
}
