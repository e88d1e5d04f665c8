package raijin

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func newHttpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Default handshake timeout is 10s; some archive mirrors are slow.
	transport.TLSHandshakeTimeout = 30 * time.Second

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Minute, // NDK archives run into the hundreds of MB
	}
}

type downloadOptions struct {
	Quiet bool // Quiet suppresses all stdout/stderr/progress output
}

// downloadFile downloads a URL into the cache, guarded by a per-file flock so
// two raijin processes never write the same cached archive concurrently.
func downloadFile(url, destFile string) error {
	return downloadFileWithOptions(url, destFile, downloadOptions{Quiet: !term.IsTerminal(int(os.Stdout.Fd()))})
}

func downloadFileWithOptions(url, destFile string, opt downloadOptions) error {
	if err := os.MkdirAll(CacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", CacheDir, err)
	}
	absPath := filepath.Join(CacheDir, filepath.Base(destFile))
	lockPath := absPath + ".lock"

	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()

	// Acquire an exclusive lock. This blocks if another process is downloading.
	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock for download: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	// DOUBLE CHECK: now that we hold the lock, the file may have appeared.
	if _, err := os.Stat(absPath); err == nil {
		debugf("File %s appeared after acquiring lock, skipping download.\n", absPath)
		_ = os.Remove(lockPath)
		return nil
	}

	defer func() {
		if _, err := os.Stat(absPath); err == nil {
			_ = os.Remove(lockPath)
		}
	}()

	debugf("Downloading %s -> %s\n", url, absPath)

	// --- Primary choice: curl when available ---
	if _, err := exec.LookPath("curl"); err == nil {
		curlArgs := []string{"-L", "--fail", "-o", absPath}
		if opt.Quiet {
			curlArgs = append(curlArgs, "-sS")
		} else {
			curlArgs = append(curlArgs, "-#")
		}
		curlArgs = append(curlArgs, url)
		cmd := exec.Command("curl", curlArgs...)
		if opt.Quiet {
			cmd.Stdout = io.Discard
			cmd.Stderr = io.Discard
		} else {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err == nil {
			debugf("Download successful with curl.\n")
			return nil
		}
		debugf("curl failed, falling back to native Go HTTP client\n")
	} else {
		debugf("curl not found, using native Go HTTP client\n")
	}

	// --- Fallback: native Go HTTP client with a progress bar ---
	client := newHttpClient()

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	// Write to a temporary name so a killed download never leaves a
	// valid-looking cached archive behind.
	partPath := absPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", partPath, err)
	}

	var dst io.Writer = out
	if !opt.Quiet {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(absPath))
		dst = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(partPath)
		return fmt.Errorf("failed to write to destination file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	return os.Rename(partPath, absPath)
}

// fetchInputs downloads and extracts the two pipeline inputs: the NDK bundle
// into NdkDir and the upstream driver source into SourceDir. Cached archives
// are reused after checksum verification.
func fetchInputs(cfg *Config) error {
	ndkURL := cfg.Values["RAIJIN_NDK_URL"]
	srcURL := cfg.Values["RAIJIN_SOURCE_URL"]
	if ndkURL == "" || srcURL == "" {
		return fmt.Errorf("%w: RAIJIN_NDK_URL and RAIJIN_SOURCE_URL must be set", ErrFetchFailed)
	}

	type input struct {
		url      string
		sum      string
		dest     string
		whatName string
	}
	inputs := []input{
		{ndkURL, cfg.Values["RAIJIN_NDK_B3"], NdkDir, "NDK"},
		{srcURL, cfg.Values["RAIJIN_SOURCE_B3"], SourceDir, "driver source"},
	}

	for _, in := range inputs {
		archive := filepath.Join(CacheDir, filepath.Base(in.url))

		if _, err := os.Stat(archive); err != nil {
			stageMsg("Downloading %s", in.whatName)
			if err := downloadFile(in.url, archive); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrFetchFailed, in.whatName, err)
			}
		} else {
			debugf("Using cached archive %s\n", archive)
		}

		if err := verifyChecksum(archive, in.sum); err != nil {
			// A corrupt cached file would fail forever; drop it.
			_ = os.Remove(archive)
			return fmt.Errorf("%w: %s: %v", ErrFetchFailed, in.whatName, err)
		}

		stageMsg("Extracting %s", in.whatName)
		if err := os.MkdirAll(in.dest, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		if err := extractArchive(archive, in.dest); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFetchFailed, in.whatName, err)
		}
	}
	return nil
}

// extractArchive dispatches on archive type. NDK r23+ ships as zip with a
// single android-ndk-* top directory; flatten it the way tarballs are
// flattened so NdkDir is always the toolchain root.
func extractArchive(archive, dest string) error {
	if strings.HasSuffix(archive, ".zip") {
		if err := unzipGo(archive, dest); err != nil {
			return err
		}
		return flattenSingleDir(dest)
	}
	return extractTar(archive, dest)
}

// flattenSingleDir moves the contents of dest's sole subdirectory up one
// level, if dest contains exactly one directory and nothing else.
func flattenSingleDir(dest string) error {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}
	top := filepath.Join(dest, entries[0].Name())
	inner, err := os.ReadDir(top)
	if err != nil {
		return err
	}
	for _, e := range inner {
		if err := os.Rename(filepath.Join(top, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return os.Remove(top)
}
