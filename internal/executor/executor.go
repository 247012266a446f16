package executor

import (
	"context"

	"github.com/coderoomhq/coderoom/internal/languages"
	"github.com/coderoomhq/coderoom/internal/metrics"
	"github.com/coderoomhq/coderoom/internal/proc"
	"github.com/coderoomhq/coderoom/internal/sandbox"
)

// Options carries one execution request from the gateway to a worker.
type Options struct {
	RoomID   string
	Language languages.Language
	Code     string
}

// Executor dispatches a request to the sandbox and records metrics. Execution
// never fails the caller: every outcome, including unsupported languages and
// missing toolchains, is a normal result.
type Executor struct {
	sandbox *sandbox.Sandbox
}

func New(sb *sandbox.Sandbox) *Executor {
	return &Executor{sandbox: sb}
}

func (e *Executor) Execute(ctx context.Context, opts Options) proc.Result {
	res := e.sandbox.Run(ctx, opts.Language, opts.Code)

	label := opts.Language.String()
	if label == "" {
		label = "unknown"
	}
	metrics.ExecutionsTotal.WithLabelValues(label, status(res)).Inc()
	metrics.ExecutionDuration.WithLabelValues(label).Observe(float64(res.Duration.Milliseconds()))

	return res
}

func status(res proc.Result) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.ToolchainMissing:
		return "toolchain_missing"
	case res.OutputTruncated:
		return "output_truncated"
	case res.ExitCode == nil:
		return "killed"
	case *res.ExitCode == 0:
		return "success"
	default:
		return "runtime_error"
	}
}
