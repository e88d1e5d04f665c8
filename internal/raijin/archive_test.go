package raijin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestZipTreeRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"module.prop":                      "id=x\n",
		"system/vendor/lib64/hw/vulkan.so": "elf",
		"customize.sh":                     "#!/system/bin/sh\n",
	}
	for rel, content := range files {
		path := filepath.Join(src, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	if err := zipTree(src, zipPath); err != nil {
		t.Fatalf("zipTree: %v", err)
	}

	dest := t.TempDir()
	if err := unzipGo(zipPath, dest); err != nil {
		t.Fatalf("unzipGo: %v", err)
	}

	for rel, content := range files {
		data, err := os.ReadFile(filepath.Join(dest, rel))
		if err != nil {
			t.Fatalf("missing %s after round trip: %v", rel, err)
		}
		if string(data) != content {
			t.Errorf("%s = %q, want %q", rel, data, content)
		}
	}
}

func TestZipTreeFailureLeavesNoArchive(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	if err := zipTree(filepath.Join(t.TempDir(), "does-not-exist"), zipPath); err == nil {
		t.Fatal("expected error for missing source tree")
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Error("failed archive left behind")
	}
}

func TestFlattenSingleDir(t *testing.T) {
	dest := t.TempDir()
	inner := filepath.Join(dest, "android-ndk-r29")
	if err := os.MkdirAll(filepath.Join(inner, "toolchains"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inner, "source.properties"), []byte("Pkg.Revision = 29\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := flattenSingleDir(dest); err != nil {
		t.Fatalf("flattenSingleDir: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "toolchains")); err != nil {
		t.Errorf("contents not hoisted: %v", err)
	}
	if _, err := os.Stat(inner); !os.IsNotExist(err) {
		t.Error("top directory not removed")
	}

	// A flat tree is left untouched.
	if err := flattenSingleDir(dest); err != nil {
		t.Fatalf("second flatten: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "toolchains")); err != nil {
		t.Errorf("flat tree modified: %v", err)
	}
}
