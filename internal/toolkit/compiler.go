package toolkit

import (
	"context"
	"fmt"
	"os"

	"github.com/book-expert/voice-bootstrap/internal/core"
)

// CompilerProbe runs the toolkit's version-reporting binary.
type CompilerProbe struct {
	runner core.CommandRunner
	env    *Environment
	flag   string
}

// NewCompilerProbe creates a probe for env's compiler, passing flag (e.g. "--version").
func NewCompilerProbe(runner core.CommandRunner, env *Environment, flag string) *CompilerProbe {
	return &CompilerProbe{
		runner: runner,
		env:    env,
		flag:   flag,
	}
}

// CompilerVersion returns the compiler's version report as text.
func (p *CompilerProbe) CompilerVersion(ctx context.Context) (string, error) {
	var args []string
	if p.flag != "" {
		args = []string{p.flag}
	}

	out, err := p.runner.Run(ctx, core.Command{
		Path: p.env.CompilerPath(),
		Args: args,
		Env:  p.env.Environ(os.Environ()),
	})
	if err != nil {
		return "", fmt.Errorf("could not run %s: %w", p.env.CompilerPath(), err)
	}

	return string(out), nil
}
