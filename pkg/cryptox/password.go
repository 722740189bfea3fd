package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// Algorithm tags written as the first segment of an encoded hash.
const (
	AlgArgon2id = "argon2id"
	AlgScrypt   = "scrypt"
)

// Argon2Params tunes the cost of Argon2id derivation.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  int
}

// DefaultArgon2Params follows the OWASP minimum for Argon2id (19 MiB, t=2, p=1).
var DefaultArgon2Params = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// scrypt parameters assumed when a legacy record carries a bare "scrypt" tag.
const (
	legacyScryptN = 16384
	legacyScryptR = 8
	legacyScryptP = 1
)

// Upper bounds applied while parsing stored parameters so a tampered record
// cannot make verification allocate unbounded memory.
const (
	maxArgon2Memory     = 1 << 20 // 1 GiB
	maxArgon2Iterations = 64
	maxScryptN          = 1 << 20
	maxDerivedLength    = 128
)

// Hasher derives and verifies salted password hashes.
//
// Encoded hashes have the form {tag}:{salt-hex}:{derived-hex}. The tag names
// the algorithm and, for non-default costs, its parameters, e.g.
// "argon2id,m=65536,t=3,p=2". A bare "argon2id" tag means DefaultArgon2Params,
// so records stay verifiable after the defaults are raised.
type Hasher struct {
	Params Argon2Params
	// Pepper is appended to the password before derivation. Legacy scrypt
	// records are verified without it.
	Pepper string
}

// NewHasher returns a Hasher using DefaultArgon2Params.
func NewHasher(pepper string) *Hasher {
	return &Hasher{Params: DefaultArgon2Params, Pepper: pepper}
}

// Hash derives a new hash with a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	p := h.params()
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	derived := argon2.IDKey([]byte(password+h.Pepper), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("%s:%s:%s", argon2Tag(p), hex.EncodeToString(salt), hex.EncodeToString(derived)), nil
}

// Verify reports whether password matches encoded. Malformed or unknown
// encodings verify as false.
func (h *Hasher) Verify(password, encoded string) bool {
	rec, err := parseEncoded(encoded)
	if err != nil {
		return false
	}

	var computed []byte
	switch rec.alg {
	case AlgArgon2id:
		computed = argon2.IDKey([]byte(password+h.Pepper), rec.salt, rec.argon.Iterations, rec.argon.Memory, rec.argon.Parallelism, uint32(len(rec.derived))) // #nosec G115 - bounded by maxDerivedLength
	case AlgScrypt:
		computed, err = scrypt.Key([]byte(password), rec.salt, rec.scryptN, rec.scryptR, rec.scryptP, len(rec.derived))
		if err != nil {
			return false
		}
	default:
		return false
	}

	return subtle.ConstantTimeCompare(computed, rec.derived) == 1
}

// NeedsRehash reports whether encoded was produced by another algorithm or
// with parameters different from the Hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) bool {
	rec, err := parseEncoded(encoded)
	if err != nil || rec.alg != AlgArgon2id {
		return true
	}
	p := h.params()
	return rec.argon.Memory != p.Memory ||
		rec.argon.Iterations != p.Iterations ||
		rec.argon.Parallelism != p.Parallelism ||
		uint32(len(rec.derived)) != p.KeyLength // #nosec G115 - bounded by maxDerivedLength
}

// DummyVerify performs a derivation of the same cost as Verify and discards
// the result. Call it when the account is unknown so response timing does not
// reveal which identifiers exist.
func (h *Hasher) DummyVerify(password string) {
	p := h.params()
	salt := make([]byte, p.SaltLength)
	_ = argon2.IDKey([]byte(password+h.Pepper), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
}

func (h *Hasher) params() Argon2Params {
	p := h.Params
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 || p.KeyLength == 0 || p.SaltLength == 0 {
		return DefaultArgon2Params
	}
	return p
}

func argon2Tag(p Argon2Params) string {
	d := DefaultArgon2Params
	if p.Memory == d.Memory && p.Iterations == d.Iterations && p.Parallelism == d.Parallelism {
		return AlgArgon2id
	}
	return fmt.Sprintf("%s,m=%d,t=%d,p=%d", AlgArgon2id, p.Memory, p.Iterations, p.Parallelism)
}

type encodedHash struct {
	alg     string
	salt    []byte
	derived []byte

	argon Argon2Params

	scryptN, scryptR, scryptP int
}

var errMalformedHash = errors.New("cryptox: malformed password hash")

func parseEncoded(encoded string) (*encodedHash, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return nil, errMalformedHash
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return nil, errMalformedHash
	}
	derived, err := hex.DecodeString(parts[2])
	if err != nil || len(derived) == 0 || len(derived) > maxDerivedLength {
		return nil, errMalformedHash
	}

	tag := strings.Split(parts[0], ",")
	params, err := parseParams(tag[1:])
	if err != nil {
		return nil, err
	}

	rec := &encodedHash{alg: tag[0], salt: salt, derived: derived}
	switch rec.alg {
	case AlgArgon2id:
		d := DefaultArgon2Params
		rec.argon = Argon2Params{
			Memory:      uint32(params.get("m", int(d.Memory))),     // #nosec G115 - range checked below
			Iterations:  uint32(params.get("t", int(d.Iterations))), // #nosec G115 - range checked below
			Parallelism: uint8(params.get("p", int(d.Parallelism))), // #nosec G115 - range checked below
		}
		if m := params.get("m", int(d.Memory)); m < 8 || m > maxArgon2Memory {
			return nil, errMalformedHash
		}
		if t := params.get("t", int(d.Iterations)); t < 1 || t > maxArgon2Iterations {
			return nil, errMalformedHash
		}
		if p := params.get("p", int(d.Parallelism)); p < 1 || p > 255 {
			return nil, errMalformedHash
		}
	case AlgScrypt:
		rec.scryptN = params.get("n", legacyScryptN)
		rec.scryptR = params.get("r", legacyScryptR)
		rec.scryptP = params.get("p", legacyScryptP)
		if rec.scryptN < 2 || rec.scryptN > maxScryptN || rec.scryptN&(rec.scryptN-1) != 0 {
			return nil, errMalformedHash
		}
		if rec.scryptR < 1 || rec.scryptR > 32 || rec.scryptP < 1 || rec.scryptP > 16 {
			return nil, errMalformedHash
		}
	default:
		return nil, errMalformedHash
	}

	return rec, nil
}

type hashParams map[string]int

func (p hashParams) get(key string, def int) int {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func parseParams(kvs []string) (hashParams, error) {
	out := make(hashParams, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errMalformedHash
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errMalformedHash
		}
		out[k] = n
	}
	return out, nil
}
