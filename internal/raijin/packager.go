package raijin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// VersionRecord is the single source of truth for every version/author field
// rendered into both package variants. Both metadata files are generated from
// this one value so their version strings and API levels cannot drift.
type VersionRecord struct {
	ID          string // overlay module id, also used in bundle names
	Name        string
	Version     string // semantic driver version
	VersionCode int    // monotonically increasing
	MinAPI      int    // minimum Android platform level
	Author      string
	Description string
	Vendor      string
	UpdateJSON  string // URL of the overlay update manifest
}

// Validate checks record completeness up front, before any packaging work,
// so template rendering can never fail on a missing field mid-run.
func (r VersionRecord) Validate() error {
	var missing []string
	for key, val := range map[string]string{
		"id": r.ID, "name": r.Name, "version": r.Version,
		"author": r.Author, "description": r.Description, "vendor": r.Vendor,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if r.VersionCode <= 0 {
		missing = append(missing, "versionCode")
	}
	if r.MinAPI <= 0 {
		missing = append(missing, "minApi")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete version record, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func versionRecordFromConfig(cfg *Config) (VersionRecord, error) {
	rec := VersionRecord{
		ID:          cfg.Values["RAIJIN_MODULE_ID"],
		Name:        cfg.Values["RAIJIN_MODULE_NAME"],
		Version:     cfg.Values["RAIJIN_VERSION"],
		Author:      cfg.Values["RAIJIN_AUTHOR"],
		Description: cfg.Values["RAIJIN_DESCRIPTION"],
		Vendor:      cfg.Values["RAIJIN_VENDOR"],
		UpdateJSON:  cfg.Values["RAIJIN_UPDATE_JSON"],
	}
	if rec.Vendor == "" {
		rec.Vendor = "Mesa"
	}
	if code := cfg.Values["RAIJIN_VERSION_CODE"]; code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			return rec, fmt.Errorf("RAIJIN_VERSION_CODE must be an integer: %v", err)
		}
		rec.VersionCode = n
	}
	if api := cfg.Values["RAIJIN_MINAPI"]; api != "" {
		n, err := strconv.Atoi(api)
		if err != nil {
			return rec, fmt.Errorf("RAIJIN_MINAPI must be an integer: %v", err)
		}
		rec.MinAPI = n
	}
	return rec, rec.Validate()
}

// emulatorManifest is the emulator package's meta.json. All fields are
// required; key names are a wire contract with the emulator's driver loader.
type emulatorManifest struct {
	SchemaVersion  int    `json:"schemaVersion"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Author         string `json:"author"`
	PackageVersion string `json:"packageVersion"`
	Vendor         string `json:"vendor"`
	DriverVersion  string `json:"driverVersion"`
	MinAPI         int    `json:"minApi"`
	LibraryName    string `json:"libraryName"`
}

const manifestSchemaVersion = 1

// Overlay artifact location mimics the device's vendor HAL library directory.
const overlayLibPath = "system/vendor/lib64/hw/vulkan.adreno.so"

// The on-device installer refuses to run under an installer runtime older
// than this. The gate executes at install time on the device; the pipeline
// only emits it.
const minInstallerVersionCode = 20400

var customizeTmpl = template.Must(template.New("customize.sh").Parse(`#!/system/bin/sh
# {{.Name}} v{{.Version}}

MIN_INSTALLER_CODE={{.MinInstaller}}

if [ "$MAGISK_VER_CODE" -lt "$MIN_INSTALLER_CODE" ]; then
  ui_print "! Installer runtime $MAGISK_VER_CODE is older than required $MIN_INSTALLER_CODE"
  abort "! Please update your installer before flashing {{.Name}}"
fi

if [ "$API" -lt {{.MinAPI}} ]; then
  ui_print "! Android API $API is lower than required {{.MinAPI}}"
  abort "! {{.Name}} v{{.Version}} needs a newer Android release"
fi

ui_print "- Installing {{.Name}} v{{.Version}}"
ui_print "- {{.Description}}"

set_perm_recursive "$MODPATH/system/vendor" 0 0 0755 0644 u:object_r:same_process_hal_file:s0
`))

var postFsDataTmpl = template.Must(template.New("post-fs-data.sh").Parse(`#!/system/bin/sh
# {{.Name}} v{{.Version}}: drop stale GLES/Vulkan pipeline caches so apps do
# not feed the new driver blobs compiled against the old one.
rm -rf /data/misc/gpu/*
`))

var uninstallTmpl = template.Must(template.New("uninstall.sh").Parse(`#!/system/bin/sh
# {{.Name}}: clear per-app shader caches compiled against the overlay driver.
for cache in /data/user_de/*/*/code_cache; do
  rm -rf "$cache/com.android.opengl.shaders_cache" "$cache/com.android.skia.shaders_cache"
done
`))

// Packager turns one validated artifact plus one VersionRecord into the two
// distribution bundles.
type Packager struct {
	Artifact string // validated compile output
	Record   VersionRecord
	WorkDir  string
}

// BundlePaths are the two durable pipeline outputs.
type BundlePaths struct {
	Overlay  string
	Emulator string
}

func newPackager(artifact string, rec VersionRecord) *Packager {
	return &Packager{Artifact: artifact, Record: rec, WorkDir: WorkDir}
}

func (p *Packager) overlayBundleName() string {
	return fmt.Sprintf("%s-v%s-overlay.zip", p.Record.ID, p.Record.Version)
}

func (p *Packager) emulatorBundleName() string {
	return fmt.Sprintf("%s-v%s-emulator.zip", p.Record.ID, p.Record.Version)
}

// emulatorLibraryName is the artifact's name inside the emulator package;
// meta.json's libraryName field must match it exactly.
func (p *Packager) emulatorLibraryName() string {
	return fmt.Sprintf("libvulkan_%s.so", p.Record.ID)
}

// copyArtifact re-checks the source at copy time. The artifact was validated
// after compile, but a vanished file between stages is an integrity error
// that must not be silently skipped.
func (p *Packager) copyArtifact(dest string) error {
	src, err := os.Open(p.Artifact)
	if err != nil {
		return fmt.Errorf("%w: vanished before packaging: %s", ErrArtifactMissing, p.Artifact)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type scriptParams struct {
	Name         string
	Version      string
	Description  string
	MinAPI       int
	MinInstaller int
}

func (p *Packager) scriptParams() scriptParams {
	return scriptParams{
		Name:         p.Record.Name,
		Version:      p.Record.Version,
		Description:  p.Record.Description,
		MinAPI:       p.Record.MinAPI,
		MinInstaller: minInstallerVersionCode,
	}
}

func renderScript(dest string, tmpl *template.Template, params scriptParams) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, params); err != nil {
		f.Close()
		return fmt.Errorf("failed to render %s: %w", filepath.Base(dest), err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, 0o755)
}

// moduleProp renders the overlay properties file: flat key=value lines.
func (p *Packager) moduleProp() string {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%s\n", p.Record.ID)
	fmt.Fprintf(&b, "name=%s\n", p.Record.Name)
	fmt.Fprintf(&b, "version=%s\n", p.Record.Version)
	fmt.Fprintf(&b, "versionCode=%d\n", p.Record.VersionCode)
	fmt.Fprintf(&b, "author=%s\n", p.Record.Author)
	fmt.Fprintf(&b, "description=%s\n", p.Record.Description)
	fmt.Fprintf(&b, "updateJson=%s\n", p.Record.UpdateJSON)
	return b.String()
}

func (p *Packager) renderManifest() ([]byte, error) {
	m := emulatorManifest{
		SchemaVersion:  manifestSchemaVersion,
		Name:           p.Record.Name,
		Description:    p.Record.Description,
		Author:         p.Record.Author,
		PackageVersion: strconv.Itoa(p.Record.VersionCode),
		Vendor:         p.Record.Vendor,
		DriverVersion:  p.Record.Version,
		MinAPI:         p.Record.MinAPI,
		LibraryName:    p.emulatorLibraryName(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// stageOverlay builds the complete overlay tree in stageDir.
func (p *Packager) stageOverlay(stageDir string) error {
	if err := p.copyArtifact(filepath.Join(stageDir, overlayLibPath)); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stageDir, "module.prop"), []byte(p.moduleProp()), 0o644); err != nil {
		return err
	}
	params := p.scriptParams()
	for name, tmpl := range map[string]*template.Template{
		"customize.sh":    customizeTmpl,
		"post-fs-data.sh": postFsDataTmpl,
		"uninstall.sh":    uninstallTmpl,
	} {
		if err := renderScript(filepath.Join(stageDir, name), tmpl, params); err != nil {
			return err
		}
	}
	return nil
}

// stageEmulator builds the complete emulator tree in stageDir.
func (p *Packager) stageEmulator(stageDir string) error {
	if err := p.copyArtifact(filepath.Join(stageDir, p.emulatorLibraryName())); err != nil {
		return err
	}
	manifest, err := p.renderManifest()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stageDir, "meta.json"), manifest, 0o644)
}

// buildBundle stages one variant fully, archives it to a temporary name and
// only then renames it into place, so a failed emission never leaves a
// valid-looking partial bundle.
func (p *Packager) buildBundle(label, bundleName string, stage func(string) error) (string, error) {
	stageDir := filepath.Join(p.WorkDir, "stage-"+label)
	if err := os.RemoveAll(stageDir); err != nil {
		return "", fmt.Errorf("%s bundle: %w", label, err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", fmt.Errorf("%s bundle: %w", label, err)
	}

	if err := stage(stageDir); err != nil {
		return "", fmt.Errorf("%s bundle: %w", label, err)
	}

	final := filepath.Join(p.WorkDir, bundleName)
	part := final + ".part"
	if err := zipTree(stageDir, part); err != nil {
		return "", fmt.Errorf("%s bundle: %w", label, err)
	}
	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return "", fmt.Errorf("%s bundle: %w", label, err)
	}
	if err := writeChecksumSidecar(final); err != nil {
		debugf("failed to write checksum sidecar for %s: %v\n", final, err)
	}
	return final, nil
}

// wrapPackagingError tags a bundle failure as a packaging error, except for
// a vanished artifact, which stays an integrity error: the operator needs to
// know the build output disappeared, not that zipping went wrong.
func wrapPackagingError(err error) error {
	if errors.Is(err, ErrArtifactMissing) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPackagingFailed, err)
}

// Run produces both bundles. The record is re-validated as a precondition so
// a malformed configuration is caught before any filesystem work. Errors are
// reported per bundle; a bundle already completed stays valid even when the
// other one fails.
func (p *Packager) Run() (*BundlePaths, error) {
	if err := p.Record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackagingFailed, err)
	}

	// Archiving and renaming bundles is the one phase an interrupt should
	// not tear through; the signal handler holds the first Ctrl+C while
	// this is set.
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)

	paths := &BundlePaths{}

	overlay, err := p.buildBundle("overlay", p.overlayBundleName(), p.stageOverlay)
	if err != nil {
		return paths, wrapPackagingError(err)
	}
	paths.Overlay = overlay
	stageMsg("Overlay bundle ready: %s", overlay)

	emulator, err := p.buildBundle("emulator", p.emulatorBundleName(), p.stageEmulator)
	if err != nil {
		return paths, wrapPackagingError(err)
	}
	paths.Emulator = emulator
	stageMsg("Emulator bundle ready: %s", emulator)

	return paths, nil
}
