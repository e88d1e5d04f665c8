package raijin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCrossCompilerNameEmbedsAPILevel(t *testing.T) {
	for _, api := range []int{28, 33, 34, 35} {
		name := crossCompilerName(api, false)
		want := fmt.Sprintf("aarch64-linux-android%d-clang", api)
		if name != want {
			t.Errorf("crossCompilerName(%d) = %q, want %q", api, name, want)
		}
		if cxx := crossCompilerName(api, true); cxx != want+"++" {
			t.Errorf("crossCompilerName(%d, cxx) = %q, want %q", api, cxx, want+"++")
		}
	}
}

func TestCrossDescriptorRender(t *testing.T) {
	d := newCrossDescriptor("/opt/ndk", 34, "/tmp/shims")
	out := d.Render()

	for _, want := range []string{
		"aarch64-linux-android34-clang",
		"system = 'android'",
		"cpu_family = 'aarch64'",
		"cpu = 'armv8'",
		"endian = 'little'",
		"'-fno-exceptions'",
		"'-fno-unwind-tables'",
		"'-static-libstdc++'",
		"'-Wno-error=c++11-narrowing'",
		"llvm-ar",
		"llvm-strip",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered cross descriptor missing %q:\n%s", want, out)
		}
	}
}

func TestWriteDescriptors(t *testing.T) {
	workDir := t.TempDir()
	shimDir := filepath.Join(workDir, "shims")

	cross := newCrossDescriptor("/opt/ndk", 34, shimDir)
	native := newNativeDescriptor()

	files, err := writeDescriptors(cross, native, workDir, shimDir)
	if err != nil {
		t.Fatalf("writeDescriptors: %v", err)
	}

	crossData, err := os.ReadFile(files.CrossFile)
	if err != nil {
		t.Fatalf("cross file not written: %v", err)
	}
	if !strings.Contains(string(crossData), "android34") {
		t.Errorf("cross file does not embed the API level:\n%s", crossData)
	}

	if _, err := os.ReadFile(files.NativeFile); err != nil {
		t.Fatalf("native file not written: %v", err)
	}

	shim := filepath.Join(shimDir, "pkg-config")
	info, err := os.Stat(shim)
	if err != nil {
		t.Fatalf("pkg-config shim not written: %v", err)
	}
	if info.Mode()&0o111 == 0 {
		t.Errorf("pkg-config shim is not executable: %v", info.Mode())
	}

	for _, link := range []string{"aarch64-linux-android-ar", "aarch64-linux-android-strip"} {
		if _, err := os.Lstat(filepath.Join(shimDir, link)); err != nil {
			t.Errorf("shim symlink %s not created: %v", link, err)
		}
	}
}

// The API level baked into the compiler path must be the same number the
// package metadata later asserts as the minimum platform level.
func TestDescriptorAPIMatchesRecordMinAPI(t *testing.T) {
	cfg := testConfig(34)

	rec, opts, err := resolveRunParams(cfg)
	if err != nil {
		t.Fatalf("resolveRunParams: %v", err)
	}
	if opts.APILevel != rec.MinAPI {
		t.Fatalf("APILevel %d != MinAPI %d", opts.APILevel, rec.MinAPI)
	}

	d := newCrossDescriptor("/opt/ndk", opts.APILevel, "/tmp/shims")
	if !strings.Contains(d.CC, fmt.Sprintf("android%d", rec.MinAPI)) {
		t.Errorf("compiler path %q does not embed MinAPI %d", d.CC, rec.MinAPI)
	}
}
