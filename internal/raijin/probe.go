package raijin

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tools the pipeline shells out to. curl and b3sum are optional fast paths
// (native Go fallbacks exist), so they are reported but never fatal.
var requiredTools = []string{"meson", "ninja", "pkg-config"}
var optionalTools = []string{"curl", "b3sum", "tar"}

// CapabilityReport is the explicit result of the environment probe. Later
// stages consume it as a precondition gate instead of re-probing PATH
// mid-pipeline.
type CapabilityReport struct {
	Missing  []string // required tools not found on PATH
	Optional []string // optional tools not found on PATH
}

func (r *CapabilityReport) OK() bool {
	return len(r.Missing) == 0
}

// probeEnvironment checks tool presence once, up front.
func probeEnvironment() *CapabilityReport {
	report := &CapabilityReport{}
	for _, tool := range requiredTools {
		if _, err := exec.LookPath(tool); err != nil {
			report.Missing = append(report.Missing, tool)
		}
	}
	for _, tool := range optionalTools {
		if _, err := exec.LookPath(tool); err != nil {
			report.Optional = append(report.Optional, tool)
		}
	}
	return report
}

// gateEnvironment runs the probe and converts a bad report into the
// dependency-stage failure.
func gateEnvironment() error {
	report := probeEnvironment()
	for _, tool := range report.Optional {
		debugf("optional tool not found: %s (using built-in fallback)\n", tool)
	}
	if !report.OK() {
		return fmt.Errorf("%w: %s", ErrMissingTools, strings.Join(report.Missing, ", "))
	}
	return nil
}
