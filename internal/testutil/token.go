package testutil

// FixedTokenGenerator returns the same session token every time.
//
// This keeps the session_token result column stable across runs so
// golden result files compare byte-identical.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator returning token.
// An empty token defaults to "test-session-token".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-session-token"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
// Implements session.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
