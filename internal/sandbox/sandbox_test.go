package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/languages"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Timeout:     5 * time.Second,
		OutputLimit: 64 * 1024,
		WorkDir:     t.TempDir(),
	}
}

// fakeCompiler writes a shell script that produces a runnable ./main artifact,
// standing in for a real compiler so tests don't need gcc on the host.
func fakeCompiler(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakecc")
	script := "#!/bin/sh\nprintf '#!/bin/sh\\necho built-and-ran\\n' > main\nchmod +x main\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertWorkspaceEmpty(t *testing.T, workDir string) {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not removed, %d entries remain", len(entries))
	}
}

func TestScriptAdapterRunsCode(t *testing.T) {
	cfg := testConfig(t)
	a := &scriptAdapter{cfg: cfg, bin: "sh", source: "main.sh"}

	res := a.Run(context.Background(), "echo hello")

	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("want exit 0, got %v (stderr %q)", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("stdout = %q", res.Stdout)
	}
	assertWorkspaceEmpty(t, cfg.WorkDir)
}

func TestFallbackAdapterRetriesMissingInterpreter(t *testing.T) {
	cfg := testConfig(t)
	a := &fallbackAdapter{
		cfg:        cfg,
		candidates: []string{"no-such-interp-zzz", "sh"},
		source:     "main.sh",
	}

	res := a.Run(context.Background(), "echo fallback-worked")

	if res.ToolchainMissing {
		t.Fatal("fallback interpreter should have been used")
	}
	if !strings.Contains(res.Stdout, "fallback-worked") {
		t.Errorf("stdout = %q", res.Stdout)
	}
	assertWorkspaceEmpty(t, cfg.WorkDir)
}

func TestFallbackAdapterAllMissing(t *testing.T) {
	cfg := testConfig(t)
	a := &fallbackAdapter{
		cfg:        cfg,
		candidates: []string{"no-such-interp-1", "no-such-interp-2"},
		source:     "main.sh",
	}

	res := a.Run(context.Background(), "echo never")

	if !res.ToolchainMissing {
		t.Fatal("want ToolchainMissing=true")
	}
	if res.ExitCode != nil {
		t.Errorf("want nil exit code, got %d", *res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "no-such-interp-1") || !strings.Contains(res.Stderr, "no-such-interp-2") {
		t.Errorf("stderr should name tried binaries, got %q", res.Stderr)
	}
	assertWorkspaceEmpty(t, cfg.WorkDir)
}

func TestCompileAdapterCompileErrorSkipsRun(t *testing.T) {
	cfg := testConfig(t)
	a := &compileAdapter{
		cfg:       cfg,
		compilers: [][]string{{"sh", "-c", "echo 'syntax error near line 1' >&2; exit 1"}},
		// If the run step were ever attempted it would flip the result shape.
		runCmd: []string{"./does-not-exist"},
		source: "main.sh",
	}

	res := a.Run(context.Background(), "broken")

	if res.ExitCode == nil || *res.ExitCode != 1 {
		t.Fatalf("want compiler exit 1, got %v", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "syntax error") {
		t.Errorf("want compiler diagnostic in stderr, got %q", res.Stderr)
	}
	assertWorkspaceEmpty(t, cfg.WorkDir)
}

func TestCompileAdapterCompilesThenRuns(t *testing.T) {
	cfg := testConfig(t)
	a := &compileAdapter{
		cfg:       cfg,
		compilers: [][]string{{fakeCompiler(t)}},
		runCmd:    []string{"./main"},
		source:    "main.sh",
	}

	res := a.Run(context.Background(), "ignored by fake compiler")

	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("want exit 0, got %v (stderr %q)", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "built-and-ran") {
		t.Errorf("stdout = %q", res.Stdout)
	}
	assertWorkspaceEmpty(t, cfg.WorkDir)
}

func TestCompileAdapterFallsBackToSecondaryCompiler(t *testing.T) {
	cfg := testConfig(t)
	a := &compileAdapter{
		cfg: cfg,
		compilers: [][]string{
			{"no-such-compiler-zzz"},
			{fakeCompiler(t)},
		},
		runCmd: []string{"./main"},
		source: "main.sh",
	}

	res := a.Run(context.Background(), "ignored")

	if res.ToolchainMissing {
		t.Fatal("secondary compiler should have been used")
	}
	if !strings.Contains(res.Stdout, "built-and-ran") {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestCompileAdapterAllCompilersMissing(t *testing.T) {
	cfg := testConfig(t)
	a := &compileAdapter{
		cfg:       cfg,
		compilers: [][]string{{"no-cc-1"}, {"no-cc-2"}},
		runCmd:    []string{"./main"},
		source:    "main.sh",
	}

	res := a.Run(context.Background(), "ignored")

	if !res.ToolchainMissing {
		t.Fatal("want ToolchainMissing=true")
	}
	if res.ExitCode != nil {
		t.Errorf("want nil exit code, got %d", *res.ExitCode)
	}
	assertWorkspaceEmpty(t, cfg.WorkDir)
}

func TestSandboxUnsupportedLanguage(t *testing.T) {
	logger := zerolog.Nop()
	s := New(testConfig(t), &logger)

	res := s.Run(context.Background(), languages.Unknown, "whatever")

	if res.ExitCode != nil {
		t.Errorf("want nil exit code, got %d", *res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "unsupported language") {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if !strings.Contains(res.Stderr, "javascript") {
		t.Errorf("stderr should list supported languages, got %q", res.Stderr)
	}
}

func TestSandboxRegisterOverridesAdapter(t *testing.T) {
	logger := zerolog.Nop()
	s := New(testConfig(t), &logger)
	s.Register(languages.JavaScript, &scriptAdapter{cfg: testConfig(t), bin: "sh", source: "main.sh"})

	res := s.Run(context.Background(), languages.JavaScript, "echo overridden")

	if !strings.Contains(res.Stdout, "overridden") {
		t.Errorf("stdout = %q", res.Stdout)
	}
}
