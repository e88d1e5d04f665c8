package raijin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// BuildOptions is the fixed option set handed verbatim to the configure step.
type BuildOptions struct {
	BuildType string // always "release"
	Platform  string // always "android"
	APILevel  int    // target platform SDK level; must equal VersionRecord.MinAPI
	Driver    string // single GPU driver to build, e.g. "freedreno"
	LTO       bool
	Strip     bool
}

func defaultBuildOptions(apiLevel int, driver string) BuildOptions {
	return BuildOptions{
		BuildType: "release",
		Platform:  "android",
		APILevel:  apiLevel,
		Driver:    driver,
		LTO:       true,
		Strip:     true,
	}
}

// Orchestrator drives the external build system: one configure call, one
// compile call, both logged to files, both gating everything after them.
type Orchestrator struct {
	Exec        *Executor
	Descriptors *DescriptorFiles
	SourceDir   string
	BuildDir    string
	LogDir      string
	Options     BuildOptions

	// Overridable for hosts with renamed binaries.
	MesonBin string
	NinjaBin string
}

func newOrchestrator(execCtx *Executor, files *DescriptorFiles, cfg *Config, opts BuildOptions) *Orchestrator {
	o := &Orchestrator{
		Exec:        execCtx,
		Descriptors: files,
		SourceDir:   SourceDir,
		BuildDir:    BuildDir,
		LogDir:      WorkDir,
		Options:     opts,
		MesonBin:    cfg.Values["RAIJIN_MESON_BIN"],
		NinjaBin:    cfg.Values["RAIJIN_NINJA_BIN"],
	}
	if o.MesonBin == "" {
		o.MesonBin = "meson"
	}
	if o.NinjaBin == "" {
		o.NinjaBin = "ninja"
	}
	return o
}

// ArtifactPath is the single expected compile output. The path is a contract
// with the upstream build layout; its absence after a successful compile is
// its own failure mode.
func (o *Orchestrator) ArtifactPath() string {
	return filepath.Join(o.BuildDir, "src", o.Options.Driver, "vulkan",
		fmt.Sprintf("libvulkan_%s.so", o.Options.Driver))
}

// runLogged runs one external step with all output captured into logPath.
// The interactive stream only ever sees digest status lines.
func (o *Orchestrator) runLogged(logPath string, name string, args ...string) error {
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	return o.Exec.Run(cmd)
}

// Configure translates the options and descriptors into the build system's
// project-setup call. A failure here is fatal: compile is never attempted.
func (o *Orchestrator) Configure() error {
	logPath := filepath.Join(o.LogDir, "configure-log.txt")
	stageMsg("Configuring %s (API %d), log: %s", o.Options.Driver, o.Options.APILevel, logPath)

	args := []string{
		"setup", o.BuildDir, o.SourceDir,
		"--cross-file", o.Descriptors.CrossFile,
		"--native-file", o.Descriptors.NativeFile,
		fmt.Sprintf("-Dbuildtype=%s", o.Options.BuildType),
		fmt.Sprintf("-Dplatforms=%s", o.Options.Platform),
		fmt.Sprintf("-Dplatform-sdk-version=%d", o.Options.APILevel),
		"-Dgallium-drivers=",
		fmt.Sprintf("-Dvulkan-drivers=%s", o.Options.Driver),
		fmt.Sprintf("-Db_lto=%t", o.Options.LTO),
		fmt.Sprintf("-Dstrip=%t", o.Options.Strip),
	}
	if err := o.runLogged(logPath, o.MesonBin, args...); err != nil {
		return fmt.Errorf("%w: %v (see %s)", ErrConfigureFailed, err, logPath)
	}
	return nil
}

// Compile triggers the parallel build of the configured project, then
// double-checks the expected artifact. Build-system success does not
// guarantee the exact expected output path, so the existence check is
// independent and its failure is reported as a distinct error.
func (o *Orchestrator) Compile() error {
	logPath := filepath.Join(o.LogDir, "compile-log.txt")
	stageMsg("Compiling with %d jobs, log: %s", runtime.NumCPU(), logPath)

	args := []string{"-C", o.BuildDir, "-j", fmt.Sprintf("%d", runtime.NumCPU())}
	if err := o.runLogged(logPath, o.NinjaBin, args...); err != nil {
		return fmt.Errorf("%w: %v (see %s)", ErrCompileFailed, err, logPath)
	}

	artifact := o.ArtifactPath()
	fi, err := os.Stat(artifact)
	if err != nil || fi.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, artifact)
	}
	stageMsg("Build artifact ready: %s (%d bytes)", artifact, fi.Size())
	return nil
}
