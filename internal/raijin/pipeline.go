package raijin

import (
	"errors"
	"fmt"
	"strconv"
)

// Pipeline bundles everything one run needs. Stages are strictly sequential
// and fail-fast: no stage retries, and every failure aborts the whole run
// while leaving the working directory and logs behind for diagnosis.
type Pipeline struct {
	Cfg    *Config
	Exec   *Executor
	Record VersionRecord
	Opts   BuildOptions
}

// resolveRunParams loads the VersionRecord and build options and enforces the
// cross-section consistency invariant: the API level compiled against must be
// the same number asserted in both package metadata files. The two values can
// be configured independently (RAIJIN_API vs RAIJIN_MINAPI), which is exactly
// how they drift, so the check is explicit and happens before any work.
func resolveRunParams(cfg *Config) (VersionRecord, BuildOptions, error) {
	rec, err := versionRecordFromConfig(cfg)
	if err != nil {
		return rec, BuildOptions{}, err
	}

	apiLevel := rec.MinAPI
	if v := cfg.Values["RAIJIN_API"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return rec, BuildOptions{}, fmt.Errorf("RAIJIN_API must be an integer: %v", err)
		}
		apiLevel = n
	}
	if apiLevel != rec.MinAPI {
		return rec, BuildOptions{}, fmt.Errorf(
			"target API level %d does not match the package minimum API %d; both must denote the same release",
			apiLevel, rec.MinAPI)
	}

	driver := cfg.Values["RAIJIN_DRIVER"]
	if driver == "" {
		driver = "freedreno"
	}

	return rec, defaultBuildOptions(apiLevel, driver), nil
}

func newPipeline(cfg *Config, execCtx *Executor) (*Pipeline, error) {
	rec, opts, err := resolveRunParams(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Cfg: cfg, Exec: execCtx, Record: rec, Opts: opts}, nil
}

// Run executes the full build-and-package pipeline.
func (p *Pipeline) Run() error {
	if err := gateEnvironment(); err != nil {
		return err
	}

	lock, err := acquireWorkLock(WorkDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	stageMsg("Preparing working directory %s", WorkDir)
	if err := resetWorkDir(WorkDir); err != nil {
		return err
	}

	if err := fetchInputs(p.Cfg); err != nil {
		return err
	}

	return p.buildAndPackage()
}

// RunPackageOnly re-packages an already built artifact without rebuilding.
// The artifact must exist at the orchestrator's expected output path.
func (p *Pipeline) RunPackageOnly() error {
	lock, err := acquireWorkLock(WorkDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	orch := newOrchestrator(p.Exec, nil, p.Cfg, p.Opts)
	packager := newPackager(orch.ArtifactPath(), p.Record)
	if _, err := packager.Run(); err != nil {
		return err
	}
	cleanupScaffolding()
	return nil
}

func (p *Pipeline) buildAndPackage() error {
	stageMsg("Generating toolchain descriptors for API %d", p.Opts.APILevel)
	cross := newCrossDescriptor(NdkDir, p.Opts.APILevel, ShimDir)
	native := newNativeDescriptor()
	files, err := writeDescriptors(cross, native, WorkDir, ShimDir)
	if err != nil {
		return err
	}

	orch := newOrchestrator(p.Exec, files, p.Cfg, p.Opts)
	if err := orch.Configure(); err != nil {
		return err
	}
	if err := orch.Compile(); err != nil {
		return err
	}

	packager := newPackager(orch.ArtifactPath(), p.Record)
	paths, err := packager.Run()
	if err != nil {
		return err
	}

	// Scaffolding is only removed once both bundles are confirmed present.
	cleanupScaffolding()

	stageMsg("Done: %s", paths.Overlay)
	stageMsg("Done: %s", paths.Emulator)
	return nil
}

// exitCodeFor maps the distinguished failure modes onto distinct process
// exit codes so callers can tell the stages apart without parsing output.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrMissingTools):
		return exitDeps
	case errors.Is(err, ErrFetchFailed):
		return exitFetch
	case errors.Is(err, ErrConfigureFailed):
		return exitConfigure
	case errors.Is(err, ErrCompileFailed):
		return exitCompile
	case errors.Is(err, ErrArtifactMissing):
		return exitArtifact
	case errors.Is(err, ErrPackagingFailed):
		return exitPackage
	default:
		return exitUsage
	}
}
