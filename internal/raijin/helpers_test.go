package raijin

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func testRecord() VersionRecord {
	return VersionRecord{
		ID:          "turnip",
		Name:        "X",
		Version:     "1.2.3",
		VersionCode: 5,
		MinAPI:      34,
		Author:      "A",
		Description: "D",
		Vendor:      "Mesa",
		UpdateJSON:  "https://example.org/update.json",
	}
}

func testConfig(minAPI int) *Config {
	return &Config{Values: map[string]string{
		"RAIJIN_MODULE_ID":    "turnip",
		"RAIJIN_MODULE_NAME":  "X",
		"RAIJIN_VERSION":      "1.2.3",
		"RAIJIN_VERSION_CODE": "5",
		"RAIJIN_MINAPI":       fmt.Sprintf("%d", minAPI),
		"RAIJIN_AUTHOR":       "A",
		"RAIJIN_DESCRIPTION":  "D",
	}}
}

// makeArtifact writes a dummy driver binary and returns its path.
func makeArtifact(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "libvulkan_freedreno.so")
	if err := os.WriteFile(path, []byte("\x7fELF dummy driver"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeStub writes an executable shell script used in place of the external
// build tools.
func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// setTestGlobals points the package globals at a throwaway tree and restores
// them afterward. The pipeline keys its paths off package-level state
// initialized from config.
func setTestGlobals(t *testing.T) string {
	t.Helper()
	work := t.TempDir()

	oldWork, oldCache, oldNdk, oldSrc, oldBuild, oldShim := WorkDir, CacheDir, NdkDir, SourceDir, BuildDir, ShimDir
	t.Cleanup(func() {
		WorkDir, CacheDir, NdkDir, SourceDir, BuildDir, ShimDir = oldWork, oldCache, oldNdk, oldSrc, oldBuild, oldShim
	})

	WorkDir = work
	CacheDir = filepath.Join(work, "cache")
	NdkDir = filepath.Join(work, "ndk")
	SourceDir = filepath.Join(work, "source")
	BuildDir = filepath.Join(work, "build")
	ShimDir = filepath.Join(work, "shims")
	return work
}
