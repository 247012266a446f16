package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/coderoomhq/coderoom/internal/proc"
)

// scriptAdapter runs an interpreted language with a single invocation.
type scriptAdapter struct {
	cfg    Config
	bin    string
	source string
}

func (a *scriptAdapter) Run(ctx context.Context, code string) proc.Result {
	dir, cleanup, err := newWorkspace(a.cfg.WorkDir, a.source, code)
	if err != nil {
		return workspaceFailure(err)
	}
	return proc.Execute(ctx, proc.Spec{
		Command:     a.bin,
		Args:        []string{a.source},
		Dir:         dir,
		Timeout:     a.cfg.Timeout,
		OutputLimit: a.cfg.OutputLimit,
	}, cleanup)
}

// fallbackAdapter runs an interpreted language, retrying with alternate
// interpreter binaries when the primary is absent. Only a missing binary
// triggers the retry; an interpreter that ran and failed is the result.
type fallbackAdapter struct {
	cfg        Config
	candidates []string
	source     string
}

func (a *fallbackAdapter) Run(ctx context.Context, code string) proc.Result {
	dir, cleanup, err := newWorkspace(a.cfg.WorkDir, a.source, code)
	if err != nil {
		return workspaceFailure(err)
	}
	defer cleanup()

	var res proc.Result
	for _, bin := range a.candidates {
		res = proc.Execute(ctx, proc.Spec{
			Command:     bin,
			Args:        []string{a.source},
			Dir:         dir,
			Timeout:     a.cfg.Timeout,
			OutputLimit: a.cfg.OutputLimit,
		}, nil)
		if !res.ToolchainMissing {
			return res
		}
	}
	res.Stderr = fmt.Sprintf("no interpreter found on host (tried %s)", strings.Join(a.candidates, ", "))
	return res
}

// compileAdapter compiles a fixed entry point and then executes the artifact.
// Candidate compiler invocations are tried in order until one is present on
// the host. A compile failure short-circuits: its result is returned verbatim
// and the run step never happens. The run step gets a fresh timeout and
// output budget independent of the compile step's.
type compileAdapter struct {
	cfg       Config
	compilers [][]string
	runCmd    []string
	source    string
}

func (a *compileAdapter) Run(ctx context.Context, code string) proc.Result {
	dir, cleanup, err := newWorkspace(a.cfg.WorkDir, a.source, code)
	if err != nil {
		return workspaceFailure(err)
	}
	defer cleanup()

	var compiled proc.Result
	for _, cmd := range a.compilers {
		compiled = proc.Execute(ctx, proc.Spec{
			Command:     cmd[0],
			Args:        cmd[1:],
			Dir:         dir,
			Timeout:     a.cfg.Timeout,
			OutputLimit: a.cfg.OutputLimit,
		}, nil)
		if !compiled.ToolchainMissing {
			break
		}
	}
	if compiled.ToolchainMissing {
		names := make([]string, 0, len(a.compilers))
		for _, cmd := range a.compilers {
			names = append(names, cmd[0])
		}
		compiled.Stderr = fmt.Sprintf("no compiler found on host (tried %s)", strings.Join(names, ", "))
		return compiled
	}
	if compiled.ExitCode == nil || *compiled.ExitCode != 0 {
		return compiled
	}

	return proc.Execute(ctx, proc.Spec{
		Command:     a.runCmd[0],
		Args:        a.runCmd[1:],
		Dir:         dir,
		Timeout:     a.cfg.Timeout,
		OutputLimit: a.cfg.OutputLimit,
	}, cleanup)
}
