package raijin

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// cleanupScaffolding removes the transient build scaffolding: the compiler
// shim directory and the packaging staging trees. It runs only on the
// success path, after both bundles are confirmed present; a failed run keeps
// everything for debugging. Idempotent and never fatal: a leftover scratch
// directory is not worth failing an otherwise finished run over.
func cleanupScaffolding() {
	targets := []string{
		ShimDir,
		filepath.Join(WorkDir, "stage-overlay"),
		filepath.Join(WorkDir, "stage-emulator"),
	}
	for _, target := range targets {
		if err := os.RemoveAll(target); err != nil {
			cPrintf(colWarn, "cleanup: failed to remove %s: %v\n", target, err)
		} else {
			debugf("cleanup: removed %s\n", target)
		}
	}
}

func handleCleanupCommand(args []string, cfg *Config) error {
	cleanupCmd := flag.NewFlagSet("cleanup", flag.ExitOnError)
	cleanSources := cleanupCmd.Bool("sources", false, "Remove all cached source archives.")
	cleanWork := cleanupCmd.Bool("workdir", false, "Remove the working directory.")
	cleanAll := cleanupCmd.Bool("all", false, "sources and workdir.")

	if err := cleanupCmd.Parse(args); err != nil {
		return err // Should not happen with flag.ExitOnError
	}

	// If no flags are provided, show help and exit
	if !*cleanSources && !*cleanWork && !*cleanAll {
		fmt.Println("Usage: raijin cleanup [flag]")
		fmt.Println("You must specify what to clean up. Use one of the following flags:")
		cleanupCmd.PrintDefaults()
		return nil
	}

	if *cleanAll {
		*cleanSources = true
		*cleanWork = true
	}

	if *cleanSources {
		colArrow.Print("-> ")
		cPrintf(colWarn, "Deleting download cache at %s.\n", CacheDir)
		if askForConfirmation(colArrow, "Are you sure you want to proceed?") {
			if err := os.RemoveAll(CacheDir); err != nil {
				return fmt.Errorf("failed to remove download cache: %w", err)
			}
			stageMsg("Download cache removed successfully.")
		} else {
			stageMsg("Cleanup of download cache canceled.")
		}
	}

	if *cleanWork {
		colArrow.Print("-> ")
		cPrintf(colWarn, "Deleting working directory at %s.\n", WorkDir)
		if askForConfirmation(colArrow, "Are you sure you want to proceed?") {
			// Refuse to delete out from under a running pipeline.
			lock, err := acquireWorkLock(WorkDir)
			if err != nil {
				return err
			}
			lock.Release()
			if err := os.RemoveAll(WorkDir); err != nil {
				return fmt.Errorf("failed to remove working directory: %w", err)
			}
			stageMsg("Working directory removed successfully.")
		} else {
			stageMsg("Cleanup of working directory canceled.")
		}
	}

	return nil
}
