package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// PasswordConfig holds the fixed hashing cost and password policy.
type PasswordConfig struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32

	MinLength   int
	MinClasses  int
	HistorySize int
}

// DefaultPasswordConfig mirrors the argon2id parameters used for user passwords.
func DefaultPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Time:        2,
		MemoryKiB:   64 * 1024,
		Parallelism: 1,
		KeyLength:   32,
		SaltLength:  16,
		MinLength:   8,
		MinClasses:  3,
		HistorySize: 5,
	}
}

// Credentials hashes and verifies passwords and enforces the password policy.
type Credentials struct {
	cfg     PasswordConfig
	history PasswordHistory
}

// NewCredentials builds a credential store. history may be nil, in which case
// reuse checks always pass.
func NewCredentials(cfg PasswordConfig, history PasswordHistory) (*Credentials, error) {
	def := DefaultPasswordConfig()
	if cfg.Time == 0 {
		cfg.Time = def.Time
	}
	if cfg.MemoryKiB == 0 {
		cfg.MemoryKiB = def.MemoryKiB
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = def.KeyLength
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = def.SaltLength
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MinClasses <= 0 {
		cfg.MinClasses = def.MinClasses
	}
	if cfg.MinClasses > 4 {
		return nil, errors.New("auth: min character classes cannot exceed 4")
	}
	if cfg.HistorySize < 0 {
		return nil, errors.New("auth: password history size must not be negative")
	}
	return &Credentials{cfg: cfg, history: history}, nil
}

// Config returns the effective configuration.
func (c *Credentials) Config() PasswordConfig { return c.cfg }

// Hash derives an argon2id digest encoded in the PHC string format.
func (c *Credentials) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	salt := make([]byte, c.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, c.cfg.Time, c.cfg.MemoryKiB, c.cfg.Parallelism, c.cfg.KeyLength)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		c.cfg.MemoryKiB,
		c.cfg.Time,
		c.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest. The digest carries its own
// cost parameters so older hashes keep verifying after a cost change.
func (c *Credentials) Verify(password, digest string) bool {
	params, salt, want, err := decodeDigest(digest)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// AssertStrength checks password against the policy. identity holds values
// the password must not contain, such as the email or the user's names.
func (c *Credentials) AssertStrength(password string, identity ...string) error {
	var problems []string
	if len([]rune(password)) < c.cfg.MinLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", c.cfg.MinLength))
	}
	if n := characterClasses(password); n < c.cfg.MinClasses {
		problems = append(problems, fmt.Sprintf("must mix at least %d of lower case, upper case, digits and symbols", c.cfg.MinClasses))
	}
	lowered := strings.ToLower(password)
	for _, raw := range identity {
		for _, part := range identityParts(raw) {
			if strings.Contains(lowered, part) {
				problems = append(problems, "must not contain your email or name")
				break
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(dedupe(problems), "; "))
	}
	return nil
}

// AssertNotReused rejects password when it matches one of the user's last
// HistorySize digests.
func (c *Credentials) AssertNotReused(ctx context.Context, userID, password string) error {
	if c.history == nil || c.cfg.HistorySize == 0 {
		return nil
	}
	hashes, err := c.history.RecentPasswordHashes(ctx, userID, c.cfg.HistorySize)
	if err != nil {
		return err
	}
	for _, h := range hashes {
		if c.Verify(password, h) {
			return ErrPasswordReused
		}
	}
	return nil
}

type digestParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decodeDigest(digest string) (digestParams, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return digestParams{}, nil, nil, errors.New("unsupported digest format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return digestParams{}, nil, nil, errors.New("unsupported argon2 version")
	}
	var p digestParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return digestParams{}, nil, nil, fmt.Errorf("parse parameters: %w", err)
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return digestParams{}, nil, nil, errors.New("invalid parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return digestParams{}, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return digestParams{}, nil, nil, errors.New("decode key")
	}
	return p, salt, key, nil
}

func characterClasses(password string) int {
	var lower, upper, digit, other bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	n := 0
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			n++
		}
	}
	return n
}

// identityParts splits an email or name into comparable fragments. Fragments
// shorter than three characters are ignored.
func identityParts(raw string) []string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return nil
	}
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
