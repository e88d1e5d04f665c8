package raijin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRunParamsConsistency(t *testing.T) {
	// RAIJIN_API and RAIJIN_MINAPI are configured independently; the run must
	// refuse to start when they drift.
	cfg := testConfig(34)
	cfg.Values["RAIJIN_API"] = "33"
	if _, _, err := resolveRunParams(cfg); err == nil {
		t.Fatal("expected drift between API 33 and MinAPI 34 to be rejected")
	}

	cfg.Values["RAIJIN_API"] = "34"
	rec, opts, err := resolveRunParams(cfg)
	if err != nil {
		t.Fatalf("resolveRunParams: %v", err)
	}
	if opts.APILevel != 34 || rec.MinAPI != 34 {
		t.Errorf("APILevel=%d MinAPI=%d, want 34/34", opts.APILevel, rec.MinAPI)
	}

	// When RAIJIN_API is unset, the target level follows the record.
	delete(cfg.Values, "RAIJIN_API")
	_, opts, err = resolveRunParams(cfg)
	if err != nil {
		t.Fatalf("resolveRunParams: %v", err)
	}
	if opts.APILevel != 34 {
		t.Errorf("APILevel = %d, want MinAPI default 34", opts.APILevel)
	}
}

func TestDefaultBuildOptions(t *testing.T) {
	opts := defaultBuildOptions(34, "freedreno")
	if opts.BuildType != "release" || opts.Platform != "android" {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	if !opts.LTO || !opts.Strip {
		t.Errorf("LTO and stripping must be on by default: %+v", opts)
	}
}

// pipelineStubs wires a pipeline against stub meson/ninja binaries.
func pipelineStubs(t *testing.T, mesonBody, ninjaBody string) (*Pipeline, string) {
	t.Helper()
	work := setTestGlobals(t)

	bin := filepath.Join(work, "stubs")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(34)
	cfg.Values["RAIJIN_MESON_BIN"] = writeStub(t, bin, "meson", mesonBody)
	cfg.Values["RAIJIN_NINJA_BIN"] = writeStub(t, bin, "ninja", ninjaBody)

	pipeline, err := newPipeline(cfg, NewExecutor(context.Background()))
	if err != nil {
		t.Fatalf("newPipeline: %v", err)
	}
	return pipeline, work
}

func globZips(t *testing.T, dir string) []string {
	t.Helper()
	zips, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		t.Fatal(err)
	}
	return zips
}

func TestPipelineConfigureFailureStopsRun(t *testing.T) {
	pipeline, work := pipelineStubs(t, "exit 1", "exit 0")

	err := pipeline.buildAndPackage()
	if !errors.Is(err, ErrConfigureFailed) {
		t.Fatalf("expected ErrConfigureFailed, got %v", err)
	}
	if zips := globZips(t, work); len(zips) != 0 {
		t.Errorf("bundles produced after configure failure: %v", zips)
	}
	// Compile must never have been attempted.
	if _, err := os.Stat(filepath.Join(work, "compile-log.txt")); !os.IsNotExist(err) {
		t.Error("compile was attempted after configure failure")
	}
}

func TestPipelineCompileFailureProducesNoBundles(t *testing.T) {
	pipeline, work := pipelineStubs(t, "exit 0", "exit 1")

	err := pipeline.buildAndPackage()
	if !errors.Is(err, ErrCompileFailed) {
		t.Fatalf("expected ErrCompileFailed, got %v", err)
	}
	if zips := globZips(t, work); len(zips) != 0 {
		t.Errorf("bundles produced after compile failure: %v", zips)
	}
}

func TestPipelineMissingArtifactProducesNoBundles(t *testing.T) {
	pipeline, work := pipelineStubs(t, "exit 0", "exit 0")

	err := pipeline.buildAndPackage()
	if !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
	if zips := globZips(t, work); len(zips) != 0 {
		t.Errorf("bundles produced despite missing artifact: %v", zips)
	}
}

func TestPipelineFullSuccess(t *testing.T) {
	// The ninja stub fabricates the artifact at the expected output path,
	// standing in for the real build system.
	pipeline, work := pipelineStubs(t, "exit 0", "exit 0")
	artifact := filepath.Join(BuildDir, "src", "freedreno", "vulkan", "libvulkan_freedreno.so")
	stub := fmt.Sprintf("mkdir -p %s\nprintf elf > %s\nexit 0", filepath.Dir(artifact), artifact)
	bin := filepath.Join(work, "stubs")
	pipeline.Cfg.Values["RAIJIN_NINJA_BIN"] = writeStub(t, bin, "ninja2", stub)

	if err := pipeline.buildAndPackage(); err != nil {
		t.Fatalf("buildAndPackage: %v", err)
	}

	if zips := globZips(t, work); len(zips) != 2 {
		t.Fatalf("expected exactly two bundles, got %v", zips)
	}

	// Scaffolding is removed on the success path.
	if _, err := os.Stat(ShimDir); !os.IsNotExist(err) {
		t.Error("shim directory survived cleanup")
	}
	for _, stage := range []string{"stage-overlay", "stage-emulator"} {
		if _, err := os.Stat(filepath.Join(work, stage)); !os.IsNotExist(err) {
			t.Errorf("staging tree %s survived cleanup", stage)
		}
	}

	// Logs stay behind for inspection.
	for _, log := range []string{"configure-log.txt", "compile-log.txt"} {
		if _, err := os.Stat(filepath.Join(work, log)); err != nil {
			t.Errorf("log %s missing after success: %v", log, err)
		}
	}
}

func TestExitCodeTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, exitOK},
		{ErrMissingTools, exitDeps},
		{ErrFetchFailed, exitFetch},
		{ErrConfigureFailed, exitConfigure},
		{ErrCompileFailed, exitCompile},
		{ErrArtifactMissing, exitArtifact},
		{ErrPackagingFailed, exitPackage},
		{errors.New("anything else"), exitUsage},
	}
	for _, c := range cases {
		if got := exitCodeFor(c.err); got != c.code {
			t.Errorf("exitCodeFor(%v) = %d, want %d", c.err, got, c.code)
		}
	}
	// Wrapped errors keep their code.
	wrapped := fmt.Errorf("%w: ninja said no", ErrCompileFailed)
	if got := exitCodeFor(wrapped); got != exitCompile {
		t.Errorf("exitCodeFor(wrapped) = %d, want %d", got, exitCompile)
	}
}
