package raijin

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// check if b3sum is installed on system
func hasB3sum() bool {
	_, err := exec.LookPath("b3sum")
	return err == nil
}

// hashFile returns the BLAKE3 hex digest of a file. The system b3sum binary
// is noticeably faster on large archives, so try it first and fall back to
// the internal Go implementation.
func hashFile(path string) (string, error) {
	if hasB3sum() {
		cmd := exec.Command("b3sum", "--no-names", path)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			sum := strings.TrimSpace(out.String())
			if sum != "" {
				return sum, nil
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// verifyChecksum compares a downloaded file against an expected BLAKE3 sum.
// An empty expected sum means the operator opted out of verification.
func verifyChecksum(path, expected string) error {
	if expected == "" {
		debugf("no checksum configured for %s, skipping verification\n", path)
		return nil
	}
	actual, err := hashFile(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expected, actual)
	}
	return nil
}

// writeChecksumSidecar emits <path>.b3 containing "<sum>  <basename>" in the
// b3sum text format, next to a finished bundle.
func writeChecksumSidecar(path string) error {
	sum, err := hashFile(path)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	return os.WriteFile(path+".b3", []byte(line), 0o644)
}
