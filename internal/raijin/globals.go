package raijin

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	WorkDir         string // process-owned working directory, one per run
	CacheDir        string // download cache, survives workdir resets
	NdkDir          string // extracted NDK root under WorkDir
	SourceDir       string // extracted upstream driver source under WorkDir
	BuildDir        string // meson/ninja output tree under WorkDir
	ShimDir         string // transient compiler shims, removed by cleanup
	Debug           bool
	WantDebug       string
	setIdlePriority bool
	buildPriority   string
	ConfigFile      = "/etc/raijin.conf"
	version         = "dev" // default version; overridden at build time
	arch            = runtime.GOARCH
	buildDate       = "unknown" // overridden at build time

	// Global executor (assigned in Main)
	BuildExec *Executor
)

// Distinguished pipeline failure modes. Each maps to its own exit status so
// an operator (or CI) can tell the stages apart without parsing logs.
var (
	ErrMissingTools    = errors.New("required tools missing")
	ErrFetchFailed     = errors.New("source fetch failed")
	ErrConfigureFailed = errors.New("configure step failed")
	ErrCompileFailed   = errors.New("compile step failed")
	ErrArtifactMissing = errors.New("compile reported success but artifact is missing or empty")
	ErrPackagingFailed = errors.New("packaging failed")
	ErrWorkdirBusy     = errors.New("working directory is in use by another run")
)

// Exit status per failure mode.
const (
	exitOK        = 0
	exitUsage     = 1
	exitDeps      = 2
	exitFetch     = 3
	exitConfigure = 4
	exitCompile   = 5
	exitArtifact  = 6
	exitPackage   = 7
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)
