// Package sandbox maps an execution request to a per-language toolchain
// pipeline. Code runs as a host subprocess under the proc supervisor; there is
// no OS-level isolation, which is a documented limitation of the service.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/languages"
	"github.com/coderoomhq/coderoom/internal/proc"
)

// Adapter is the compile/run pipeline for one language.
type Adapter interface {
	Run(ctx context.Context, code string) proc.Result
}

type Config struct {
	Timeout     time.Duration // budget per supervised step
	OutputLimit int           // per-stream cap in bytes
	WorkDir     string        // root for per-request workspaces; empty means the OS temp dir
}

type Sandbox struct {
	cfg      Config
	adapters map[languages.Language]Adapter
	logger   *zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Sandbox {
	s := &Sandbox{
		cfg:      cfg,
		adapters: make(map[languages.Language]Adapter),
		logger:   logger,
	}
	s.registerDefaults()
	return s
}

func (s *Sandbox) registerDefaults() {
	s.Register(languages.JavaScript, &scriptAdapter{
		cfg:    s.cfg,
		bin:    "node",
		source: languages.JavaScript.SourceFile(),
	})
	s.Register(languages.Python, &fallbackAdapter{
		cfg:        s.cfg,
		candidates: []string{"python3", "python"},
		source:     languages.Python.SourceFile(),
	})
	s.Register(languages.C, &compileAdapter{
		cfg: s.cfg,
		compilers: [][]string{
			{"gcc", "-O2", "-o", "main", "main.c"},
			{"cc", "-O2", "-o", "main", "main.c"},
		},
		runCmd: []string{"./main"},
		source: languages.C.SourceFile(),
	})
	s.Register(languages.Go, &compileAdapter{
		cfg: s.cfg,
		compilers: [][]string{
			{"go", "build", "-o", "main", "main.go"},
		},
		runCmd: []string{"./main"},
		source: languages.Go.SourceFile(),
	})
}

// Register binds a language to an adapter, replacing any existing binding.
func (s *Sandbox) Register(lang languages.Language, a Adapter) {
	s.adapters[lang] = a
}

// Run dispatches code to the adapter for lang. Unsupported languages yield a
// soft result with an explanatory stderr; Run never returns an error and
// never panics the caller over a bad language tag.
func (s *Sandbox) Run(ctx context.Context, lang languages.Language, code string) proc.Result {
	adapter, ok := s.adapters[lang]
	if !ok {
		supported := make([]string, 0, len(languages.All()))
		for _, l := range languages.All() {
			supported = append(supported, l.String())
		}
		return proc.Result{
			Stderr: fmt.Sprintf("unsupported language; supported: %s", strings.Join(supported, ", ")),
		}
	}

	res := adapter.Run(ctx, code)
	s.logger.Debug().
		Str("language", lang.String()).
		Bool("timed_out", res.TimedOut).
		Bool("truncated", res.OutputTruncated).
		Bool("toolchain_missing", res.ToolchainMissing).
		Dur("duration", res.Duration).
		Msg("execution finished")
	return res
}

// newWorkspace creates the isolated per-request directory holding the source
// file. The returned cleanup is idempotent, so both a deferred call and the
// supervisor's cleanup hook can fire without tripping over each other.
func newWorkspace(root, sourceFile, code string) (string, func(), error) {
	dir, err := os.MkdirTemp(root, "coderoom-run-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() { _ = os.RemoveAll(dir) })
	}
	if err := os.WriteFile(filepath.Join(dir, sourceFile), []byte(code), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write source: %w", err)
	}
	return dir, cleanup, nil
}

func workspaceFailure(err error) proc.Result {
	return proc.Result{Stderr: "sandbox: " + err.Error()}
}
