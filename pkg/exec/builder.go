// Package exec builds and runs provider CLI invocations. The provider and
// storage binaries are treated as black boxes reached through fork/exec; this
// package owns argument construction and stream capture, nothing else.
package exec

import "fmt"

// Builder accumulates an ordered CLI token list. Order of Append calls is
// preserved exactly, since the provider CLI is positional-subcommand
// sensitive (e.g. `jobs submit training <job-id> --flag=value`).
type Builder struct {
	tokens []string
}

func NewBuilder(tokens ...string) *Builder {
	b := &Builder{}
	return b.Append(tokens...)
}

// Append adds literal tokens.
func (b *Builder) Append(tokens ...string) *Builder {
	b.tokens = append(b.tokens, tokens...)
	return b
}

// Appendf adds a single formatted token. An empty value omits the token
// entirely, which lets call sites pass optional flags without branching.
func (b *Builder) Appendf(format string, value string) *Builder {
	if value == "" {
		return b
	}
	b.tokens = append(b.tokens, fmt.Sprintf(format, value))
	return b
}

// Args returns the accumulated token list. The builder is not consumed; the
// returned slice is a copy, so repeated calls yield identical, independent
// results.
func (b *Builder) Args() []string {
	out := make([]string, len(b.tokens))
	copy(out, b.tokens)
	return out
}
