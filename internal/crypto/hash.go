package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidHashFormat   = errors.New("invalid encoded hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// HashParams configures the Argon2id hashing parameters.
type HashParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams returns recommended Argon2id parameters for password hashing.
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// HashPassword hashes a password using Argon2id with default parameters.
// Returns the hash encoded in PHC string format.
func HashPassword(password string) (string, error) {
	return HashPasswordWithParams(password, DefaultHashParams())
}

// HashPasswordWithParams hashes a password using Argon2id with the given parameters.
func HashPasswordWithParams(password string, params HashParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// $argon2id$v=19$m=65536,t=3,p=2$<base64-salt>$<base64-hash>
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory,
		params.Iterations,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks whether a password matches the given encoded hash.
// Argon2id PHC strings are checked in constant time; bcrypt hashes carried
// over from accounts created by the Node server are accepted as well.
func VerifyPassword(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, ErrInvalidHashFormat
		}
	}

	params, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// hash under params: bcrypt hashes always, Argon2id hashes whose cost or
// key length differ from params. Unparseable hashes report false.
func NeedsRehash(encodedHash string, params HashParams) bool {
	if isBcryptHash(encodedHash) {
		return true
	}
	current, _, _, err := decodeHash(encodedHash)
	if err != nil {
		return false
	}
	return current.Memory != params.Memory ||
		current.Iterations != params.Iterations ||
		current.Parallelism != params.Parallelism ||
		current.KeyLength != params.KeyLength
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// decodeHash parses a PHC-formatted Argon2id hash string.
func decodeHash(encodedHash string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, ErrInvalidHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashParams{}, nil, nil, ErrInvalidHashFormat
	}
	if version != argon2.Version {
		return HashParams{}, nil, nil, ErrIncompatibleVersion
	}

	var params HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return HashParams{}, nil, nil, ErrInvalidHashFormat
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, ErrInvalidHashFormat
	}
	params.SaltLength = uint32(len(salt))

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return HashParams{}, nil, nil, ErrInvalidHashFormat
	}
	params.KeyLength = uint32(len(hash))

	return params, salt, hash, nil
}
