package raijin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigParsesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "raijin.conf")
	conf := `# comment
RAIJIN_WORKDIR=/tmp/raijin-test
RAIJIN_VERSION = "9.9.9"
malformed line
`
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RAIJIN_DRIVER", "panfrost")

	cfg, err := loadConfig(confPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if got := cfg.Values["RAIJIN_WORKDIR"]; got != "/tmp/raijin-test" {
		t.Errorf("RAIJIN_WORKDIR = %q", got)
	}
	if got := cfg.Values["RAIJIN_VERSION"]; got != "9.9.9" {
		t.Errorf("quotes not stripped: %q", got)
	}
	if got := cfg.Values["RAIJIN_DRIVER"]; got != "panfrost" {
		t.Errorf("env override not merged: %q", got)
	}
	if got := cfg.Values["TMPDIR"]; got == "" {
		t.Error("TMPDIR default not applied")
	}
}

func TestInitConfigDerivesPaths(t *testing.T) {
	work := setTestGlobals(t)
	_ = work

	cfg := &Config{Values: map[string]string{
		"RAIJIN_WORKDIR": "/tmp/raijin-x",
		"TMPDIR":         "/tmp",
	}}
	initConfig(cfg)

	if WorkDir != "/tmp/raijin-x" {
		t.Errorf("WorkDir = %q", WorkDir)
	}
	for name, dir := range map[string]string{
		"ndk": NdkDir, "source": SourceDir, "build": BuildDir, "shims": ShimDir,
	} {
		if filepath.Dir(dir) != WorkDir {
			t.Errorf("%s dir %q not under the working directory", name, dir)
		}
	}
}

func TestVersionRecordFromConfig(t *testing.T) {
	cfg := testConfig(34)
	rec, err := versionRecordFromConfig(cfg)
	if err != nil {
		t.Fatalf("versionRecordFromConfig: %v", err)
	}
	if rec.Version != "1.2.3" || rec.VersionCode != 5 || rec.MinAPI != 34 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Vendor != "Mesa" {
		t.Errorf("vendor default not applied: %q", rec.Vendor)
	}

	cfg.Values["RAIJIN_VERSION_CODE"] = "not-a-number"
	if _, err := versionRecordFromConfig(cfg); err == nil {
		t.Error("expected error for non-integer version code")
	}

	delete(cfg.Values, "RAIJIN_VERSION_CODE")
	if _, err := versionRecordFromConfig(cfg); err == nil {
		t.Error("expected validation error for missing version code")
	}
}
