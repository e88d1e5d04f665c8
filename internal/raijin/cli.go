package raijin

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: raijin <command> [arguments]")
	colSuccess.Println("Run 'raijin <command>' for advanced options")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"version, --version", "", "Version information"},
		{"check", "", "Probe the host for required external tools"},
		{"fetch", "", "Download and extract the NDK and driver source"},
		{"build, b", "", "Run the full build-and-package pipeline"},
		{"package, p", "", "Re-package an already built artifact"},
		{"publish", "[-y]", "Upload bundles to R2 and refresh update.json"},
		{"cleanup", "[options]", "Cleanup caches and the working directory"},
	}

	// --- Dynamic Padding Logic ---
	// 1. Find the longest usage string to calculate the first column width.
	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++ // Account for the space
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	// 2. Print the formatted list with calculated padding.
	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}
		padding := columnWidth - len(usageString)
		if padding < 1 {
			padding = 1
		}
		if c.Args != "" {
			fmt.Printf("  ")
			colInfo.Printf("%s", c.Cmd)
			fmt.Printf(" %s", c.Args)
		} else {
			fmt.Printf("  ")
			colInfo.Printf("%s", c.Cmd)
		}
		fmt.Printf("%*s%s\n", padding, "", c.Desc)
	}
}

func printVersion() {
	colSuccess.Printf("raijin %s (%s), built %s\n", version, arch, buildDate)
}

func Main() {
	// 1. CONTEXT AND SIGNAL SETUP
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// Signal handling: first signal cancels the run gracefully (the working
	// directory is left in place for inspection), a second one forces exit.
	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					colArrow.Print("\n-> ")
					colError.Printf("Critical operation in progress. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130) // Common exit code for SIGINT
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
					cancel()

					// Give the command a moment to die and flush its buffers
					time.Sleep(100 * time.Millisecond)

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(2 * time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Graceful shutdown timeout. Exiting.")
						os.Exit(130)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// 2. CONFIG
	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		colError.Printf("Failed to load configuration: %v\n", err)
		os.Exit(exitUsage)
	}
	initConfig(cfg)

	BuildExec = NewExecutor(ctx)
	BuildExec.ApplyIdlePriority = setIdlePriority

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(exitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	fail := func(stage string, err error) {
		colArrow.Print("-> ")
		colError.Printf("%s: %v\n", stage, err)
		os.Exit(exitCodeFor(err))
	}

	switch cmd {
	case "version", "--version":
		printVersion()

	case "help", "-h", "--help":
		printHelp()

	case "check":
		report := probeEnvironment()
		if report.OK() {
			stageMsg("All required tools present.")
		} else {
			for _, tool := range report.Missing {
				cPrintf(colError, "missing required tool: %s\n", tool)
			}
			os.Exit(exitDeps)
		}
		for _, tool := range report.Optional {
			cPrintf(colWarn, "optional tool not found: %s\n", tool)
		}

	case "fetch":
		lock, err := acquireWorkLock(WorkDir)
		if err != nil {
			fail("fetch", err)
		}
		if err := fetchInputs(cfg); err != nil {
			lock.Release()
			fail("fetch", err)
		}
		lock.Release()

	case "build", "b":
		pipeline, err := newPipeline(cfg, BuildExec)
		if err != nil {
			fail("precondition", err)
		}
		if err := pipeline.Run(); err != nil {
			fail("build", err)
		}

	case "package", "p":
		pipeline, err := newPipeline(cfg, BuildExec)
		if err != nil {
			fail("precondition", err)
		}
		if err := pipeline.RunPackageOnly(); err != nil {
			fail("package", err)
		}

	case "publish":
		if err := handlePublishCommand(args, cfg); err != nil {
			fail("publish", err)
		}

	case "cleanup":
		if err := handleCleanupCommand(args, cfg); err != nil {
			fail("cleanup", err)
		}

	default:
		colError.Printf("Unknown command: %s\n", cmd)
		printHelp()
		os.Exit(exitUsage)
	}
}
