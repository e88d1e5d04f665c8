package raijin

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load /etc/raijin.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge RAIJIN_* env overrides
	mergeEnvOverrides(cfg)

	// Ensure TMPDIR has a default
	if tmp := cfg.Values["TMPDIR"]; tmp == "" {
		cfg.Values["TMPDIR"] = "/tmp"
	}

	return cfg, nil
}

// Merge RAIJIN_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "RAIJIN_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func initConfig(cfg *Config) {
	tmpDir := cfg.Values["TMPDIR"]

	WorkDir = cfg.Values["RAIJIN_WORKDIR"]
	if WorkDir == "" {
		WorkDir = filepath.Join(tmpDir, "raijin")
	}

	CacheDir = cfg.Values["RAIJIN_CACHE_DIR"]
	if CacheDir == "" {
		CacheDir = "/var/cache/raijin/sources"
	}

	NdkDir = filepath.Join(WorkDir, "ndk")
	SourceDir = filepath.Join(WorkDir, "source")
	BuildDir = filepath.Join(WorkDir, "build")
	ShimDir = filepath.Join(WorkDir, "shims")

	WantDebug = cfg.Values["RAIJIN_DEBUG"]
	Debug = WantDebug == "1"

	buildPriority = cfg.Values["RAIJIN_PRIORITY"]
	if buildPriority == "" {
		buildPriority = "normal"
	}
	setIdlePriority = buildPriority == "idle" || buildPriority == "superidle"
}
