package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// EnvStore reads secrets from environment variables. The id "/GithubSecret" with prefix
// "HUBHOOK_" is looked up as HUBHOOK_GITHUB_SECRET.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvStore returns an EnvStore backed by the process environment.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix, lookup: os.LookupEnv}
}

// GetSecret returns the value of the variable derived from id.
func (s *EnvStore) GetSecret(_ context.Context, id string) (string, error) {
	name := s.prefix + EnvName(id)
	value, ok := s.lookup(name)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return value, nil
}

// EnvName maps a secret id to an environment variable name: path separators and other
// punctuation become underscores and camel-case boundaries are split.
func EnvName(id string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.Trim(id, "/") {
		switch {
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower = false
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
			prevLower = true
		default:
			b.WriteByte('_')
			prevLower = false
		}
	}
	return b.String()
}
