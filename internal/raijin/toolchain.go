package raijin

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CrossDescriptor binds the build system's abstract binary roles to concrete
// NDK toolchain paths for one target. It is a value: built once per run,
// rendered to disk before the configure step, never mutated afterward.
type CrossDescriptor struct {
	Archiver  string
	CC        string
	CXX       string
	Linker    string
	Strip     string
	PkgConfig string

	CArgs    []string
	CppArgs  []string
	LinkArgs []string

	System    string
	CPUFamily string
	CPU       string
	Endian    string
}

// NativeDescriptor describes the build machine's own toolchain, used for the
// code generators meson compiles and runs on the host during the build.
type NativeDescriptor struct {
	Archiver  string
	CC        string
	CXX       string
	Strip     string
	PkgConfig string
}

// ndkBinDir returns the NDK's LLVM toolchain bin directory for this host.
func ndkBinDir(ndkRoot string) string {
	hostTag := runtime.GOOS + "-x86_64"
	return filepath.Join(ndkRoot, "toolchains", "llvm", "prebuilt", hostTag, "bin")
}

// crossCompilerName computes the API-suffixed clang driver name the NDK
// ships. The API level is a parameter on purpose: the suffix must always
// track the configured level rather than a hardcoded one.
func crossCompilerName(apiLevel int, cxx bool) string {
	name := fmt.Sprintf("aarch64-linux-android%d-clang", apiLevel)
	if cxx {
		name += "++"
	}
	return name
}

// newCrossDescriptor builds the target descriptor for an aarch64 Android
// driver build against the given NDK root and API level.
func newCrossDescriptor(ndkRoot string, apiLevel int, shimDir string) CrossDescriptor {
	bin := ndkBinDir(ndkRoot)
	return CrossDescriptor{
		Archiver:  filepath.Join(bin, "llvm-ar"),
		CC:        filepath.Join(bin, crossCompilerName(apiLevel, false)),
		CXX:       filepath.Join(bin, crossCompilerName(apiLevel, true)),
		Linker:    filepath.Join(bin, "ld.lld"),
		Strip:     filepath.Join(bin, "llvm-strip"),
		PkgConfig: filepath.Join(shimDir, "pkg-config"),

		CArgs:   []string{"-fno-exceptions", "-fno-unwind-tables"},
		CppArgs: []string{"-fno-exceptions", "-fno-unwind-tables", "-Wno-error=c++11-narrowing"},
		// The driver must not drag a shared C++ runtime onto the device.
		LinkArgs: []string{"-static-libstdc++"},

		System:    "android",
		CPUFamily: "aarch64",
		CPU:       "armv8",
		Endian:    "little",
	}
}

// newNativeDescriptor describes the host toolchain by plain PATH names;
// meson resolves them itself.
func newNativeDescriptor() NativeDescriptor {
	return NativeDescriptor{
		Archiver:  "ar",
		CC:        "cc",
		CXX:       "c++",
		Strip:     "strip",
		PkgConfig: "pkg-config",
	}
}

func quoteList(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + a + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Render emits the descriptor in meson cross-file syntax.
func (d CrossDescriptor) Render() string {
	var b strings.Builder
	b.WriteString("[binaries]\n")
	fmt.Fprintf(&b, "ar = '%s'\n", d.Archiver)
	fmt.Fprintf(&b, "c = '%s'\n", d.CC)
	fmt.Fprintf(&b, "cpp = '%s'\n", d.CXX)
	fmt.Fprintf(&b, "c_ld = '%s'\n", d.Linker)
	fmt.Fprintf(&b, "cpp_ld = '%s'\n", d.Linker)
	fmt.Fprintf(&b, "strip = '%s'\n", d.Strip)
	fmt.Fprintf(&b, "pkg-config = '%s'\n", d.PkgConfig)
	b.WriteString("\n[built-in options]\n")
	fmt.Fprintf(&b, "c_args = %s\n", quoteList(d.CArgs))
	fmt.Fprintf(&b, "cpp_args = %s\n", quoteList(d.CppArgs))
	fmt.Fprintf(&b, "c_link_args = %s\n", quoteList(d.LinkArgs))
	fmt.Fprintf(&b, "cpp_link_args = %s\n", quoteList(d.LinkArgs))
	b.WriteString("\n[host_machine]\n")
	fmt.Fprintf(&b, "system = '%s'\n", d.System)
	fmt.Fprintf(&b, "cpu_family = '%s'\n", d.CPUFamily)
	fmt.Fprintf(&b, "cpu = '%s'\n", d.CPU)
	fmt.Fprintf(&b, "endian = '%s'\n", d.Endian)
	return b.String()
}

// Render emits the descriptor in meson native-file syntax.
func (d NativeDescriptor) Render() string {
	var b strings.Builder
	b.WriteString("[binaries]\n")
	fmt.Fprintf(&b, "ar = '%s'\n", d.Archiver)
	fmt.Fprintf(&b, "c = '%s'\n", d.CC)
	fmt.Fprintf(&b, "cpp = '%s'\n", d.CXX)
	fmt.Fprintf(&b, "strip = '%s'\n", d.Strip)
	fmt.Fprintf(&b, "pkg-config = '%s'\n", d.PkgConfig)
	return b.String()
}

// DescriptorFiles holds the on-disk locations of the rendered descriptors.
type DescriptorFiles struct {
	CrossFile  string
	NativeFile string
}

// pkg-config must answer with an empty search path when cross compiling, or
// meson picks up host libraries for the target.
const pkgConfigShim = `#!/bin/sh
export PKG_CONFIG_LIBDIR=
exec pkg-config "$@"
`

// writeDescriptors renders both descriptor files plus the transient shim
// directory. It never invokes a compiler; the only failure mode is a
// filesystem write failure, which is fatal for the run.
func writeDescriptors(cross CrossDescriptor, native NativeDescriptor, workDir, shimDir string) (*DescriptorFiles, error) {
	if err := os.MkdirAll(shimDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shim directory %s: %w", shimDir, err)
	}
	if err := os.WriteFile(filepath.Join(shimDir, "pkg-config"), []byte(pkgConfigShim), 0o755); err != nil {
		return nil, fmt.Errorf("failed to write pkg-config shim: %w", err)
	}
	// Unversioned tool names some upstream build scripts expect on PATH.
	for shim, target := range map[string]string{
		"aarch64-linux-android-ar":    cross.Archiver,
		"aarch64-linux-android-strip": cross.Strip,
	} {
		link := filepath.Join(shimDir, shim)
		_ = os.Remove(link)
		if err := os.Symlink(target, link); err != nil {
			return nil, fmt.Errorf("failed to create shim symlink %s: %w", link, err)
		}
	}

	files := &DescriptorFiles{
		CrossFile:  filepath.Join(workDir, "android-aarch64.cross"),
		NativeFile: filepath.Join(workDir, "host.native"),
	}
	if err := os.WriteFile(files.CrossFile, []byte(cross.Render()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cross descriptor: %w", err)
	}
	if err := os.WriteFile(files.NativeFile, []byte(native.Render()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write native descriptor: %w", err)
	}
	return files, nil
}
