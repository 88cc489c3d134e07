package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// argon2id cost for new hashes (OWASP 2025).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

const (
	argonPrefix  = "$argon2id$"
	djangoPrefix = "pbkdf2_sha256$" // imported from the reporting app's Django user table

	// $-separated fields after the prefix.
	argonFields  = 4 // version, params, salt, hash
	djangoFields = 3 // iterations, salt, hash
)

var (
	errUnsupportedHash = errors.New("unsupported password hash format")
	errMalformedHash   = errors.New("malformed password hash")
)

// HashPassword returns an argon2id PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p := argonParams{time: argonTime, memory: argonMemory, threads: argonThreads}
	return p.encode(salt, argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, argonKeyLen)), nil
}

// VerifyPassword reports whether password matches encodedHash. Both
// argon2id PHC strings and Django pbkdf2_sha256 strings are accepted; any
// other format is an error.
func VerifyPassword(password, encodedHash string) (bool, error) {
	var want, got []byte
	switch {
	case strings.HasPrefix(encodedHash, argonPrefix):
		p, salt, hash, err := decodeArgon2id(encodedHash)
		if err != nil {
			return false, err
		}
		want = hash
		got = argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(hash))) //nolint:gosec // decoded hash is short
	case strings.HasPrefix(encodedHash, djangoPrefix):
		iterations, salt, hash, err := decodeDjango(encodedHash)
		if err != nil {
			return false, err
		}
		want = hash
		got = pbkdf2.Key([]byte(password), salt, iterations, len(hash), sha256.New)
	default:
		return false, errUnsupportedHash
	}
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// NeedsRehash is true for hashes that verify but are not argon2id at the
// current cost, such as imported Django hashes.
func NeedsRehash(encodedHash string) bool {
	if !strings.HasPrefix(encodedHash, argonPrefix) {
		return true
	}
	p, _, _, err := decodeArgon2id(encodedHash)
	if err != nil {
		return true
	}
	return p.time < argonTime || p.memory < argonMemory
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func (p argonParams) encode(salt, hash []byte) string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argonPrefix, argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// decodeArgon2id splits $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func decodeArgon2id(encoded string) (p argonParams, salt, hash []byte, err error) {
	fields := strings.Split(strings.TrimPrefix(encoded, argonPrefix), "$")
	if len(fields) != argonFields {
		return p, nil, nil, fmt.Errorf("%w: want 6 $-separated parts", errMalformedHash)
	}

	var version int
	if _, err = fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: version: %w", errMalformedHash, err)
	}
	if _, err = fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: parameters: %w", errMalformedHash, err)
	}
	if salt, err = base64.RawStdEncoding.DecodeString(fields[2]); err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %w", errMalformedHash, err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(fields[3]); err != nil {
		return p, nil, nil, fmt.Errorf("%w: hash: %w", errMalformedHash, err)
	}
	return p, salt, hash, nil
}

// decodeDjango splits pbkdf2_sha256$<iterations>$<salt>$<base64 hash>.
// Django uses the salt as raw text, not base64.
func decodeDjango(encoded string) (iterations int, salt, hash []byte, err error) {
	fields := strings.SplitN(strings.TrimPrefix(encoded, djangoPrefix), "$", djangoFields)
	if len(fields) != djangoFields {
		return 0, nil, nil, fmt.Errorf("%w: want 4 $-separated parts", errMalformedHash)
	}
	iterations, err = strconv.Atoi(fields[0])
	if err != nil || iterations <= 0 {
		return 0, nil, nil, fmt.Errorf("%w: iteration count %q", errMalformedHash, fields[0])
	}
	if hash, err = base64.StdEncoding.DecodeString(fields[2]); err != nil {
		return 0, nil, nil, fmt.Errorf("%w: hash: %w", errMalformedHash, err)
	}
	return iterations, []byte(fields[1]), hash, nil
}

// dummyHash is verified against when a username does not exist so the
// response time matches a real password check.
var dummyHash = sync.OnceValue(func() string {
	b := make([]byte, argonSaltLen)
	_, _ = rand.Read(b) //nolint:errcheck // crypto/rand does not fail on supported platforms
	h, err := HashPassword(base64.RawStdEncoding.EncodeToString(b))
	if err != nil {
		return argonPrefix + "v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	}
	return h
})
