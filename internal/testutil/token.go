package testutil

// FixedTokenGenerator returns the same run token every time.
//
// Scenarios pin the run token so that content-addressed event IDs and
// golden traces are byte-identical across runs. Unlike
// engine.FixedGenerator, which hands out tokens in sequence and panics when
// exhausted, this generator survives any number of resets.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed run token generator.
// If token is empty, Generate returns "test-run-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-run-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
