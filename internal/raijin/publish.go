package raijin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// updateManifest is the overlay installer's remote update descriptor, served
// at the URL written into module.prop's updateJson key.
type updateManifest struct {
	Version     string `json:"version"`
	VersionCode int    `json:"versionCode"`
	ZipURL      string `json:"zipUrl"`
	Changelog   string `json:"changelog"`
}

// handlePublishCommand uploads the two finished bundles (plus checksum
// sidecars) to R2 and regenerates the update manifest so on-device installers
// see the new release.
func handlePublishCommand(args []string, cfg *Config) error {
	ctx := context.Background()

	yes := false
	for _, arg := range args {
		if arg == "--yes" || arg == "-y" {
			yes = true
		}
	}

	rec, _, err := resolveRunParams(cfg)
	if err != nil {
		return err
	}

	r2, err := NewR2Client(cfg)
	if err != nil {
		return err
	}

	baseURL := cfg.Values["R2_PUBLIC_URL"]
	if baseURL == "" {
		return fmt.Errorf("R2_PUBLIC_URL must be set to build download links")
	}

	p := &Packager{Record: rec, WorkDir: WorkDir}
	bundles := []string{
		filepath.Join(WorkDir, p.overlayBundleName()),
		filepath.Join(WorkDir, p.emulatorBundleName()),
	}

	for _, bundle := range bundles {
		if _, err := os.Stat(bundle); err != nil {
			return fmt.Errorf("bundle not found: %s (run a build first)", bundle)
		}
	}

	for _, bundle := range bundles {
		key := filepath.Base(bundle)
		if !yes {
			colArrow.Print("-> ")
			if !askForConfirmation(colWarn, "Upload %s?", key) {
				continue
			}
		}
		stageMsg("Uploading to R2: %s", key)
		if err := r2.UploadLocalFile(ctx, key, bundle); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		if _, err := os.Stat(bundle + ".b3"); err == nil {
			if err := r2.UploadLocalFile(ctx, key+".b3", bundle+".b3"); err != nil {
				return fmt.Errorf("failed to upload %s.b3: %w", key, err)
			}
		}
	}

	manifest := updateManifest{
		Version:     rec.Version,
		VersionCode: rec.VersionCode,
		ZipURL:      fmt.Sprintf("%s/%s", baseURL, p.overlayBundleName()),
		Changelog:   fmt.Sprintf("%s/CHANGELOG.md", baseURL),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	stageMsg("Updating remote update.json (version %s, code %d)", rec.Version, rec.VersionCode)
	if err := r2.UploadFile(ctx, "update.json", append(data, '\n')); err != nil {
		return fmt.Errorf("failed to upload update.json: %w", err)
	}

	stageMsg("Publish complete.")
	return nil
}
