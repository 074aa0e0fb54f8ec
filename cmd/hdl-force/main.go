// =============================================================================
// hdl-force - Main Entry Point
// =============================================================================
//
// Removes force/release statements from elaborated netlists so a simulator
// that only understands plain assignments can run them.
//
// THE PIPELINE:
//   1. Design documents (JSON netlists) are found through hdl_force.json
//   2. CUE checks every document against #Design before decoding
//   3. The force pass gives forced signals a shadow set and rewrites
//      force, release and reads against it
//   4. The ownership check verifies the rewritten graph
//   5. Fact tables of the result go through #FactTables and the OPA
//      lowering contract
//   6. Lowered documents are written, diagnostics and violations reported
//
// WHEN A LOWERED DESIGN MISBEHAVES:
//   Check the input contract first, then the pass diagnostics, then the
//   policy violations. hdl-facts shows the fact delta of a design.
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robert-at-pretension-io/hdl-force/internal/config"
	"github.com/robert-at-pretension-io/hdl-force/internal/driver"
)

type options struct {
	verbose    bool
	jsonOutput bool
	progress   bool
	timing     bool
	clearCache bool
	configPath string
	path       string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
		return
	case "-h", "--help", "help":
		printUsage()
		return
	}

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}
	os.Exit(run(opts))
}

func parseArgs(args []string) (options, error) {
	var opts options
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-v", "--verbose":
			opts.verbose = true
		case "--json":
			opts.jsonOutput = true
		case "--progress":
			opts.progress = true
		case "--timing":
			opts.timing = true
		case "--clear-cache":
			opts.clearCache = true
		case "-c", "--config":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("%s needs a file", arg)
			}
			i++
			opts.configPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return opts, fmt.Errorf("unknown option %s", arg)
			}
			if opts.path != "" {
				return opts, fmt.Errorf("more than one path given")
			}
			opts.path = arg
		}
	}
	if opts.path == "" {
		return opts, fmt.Errorf("no path given")
	}
	return opts, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: hdl-force [command] [options] <path>

Commands:
  init              Create a hdl_force.json configuration file
  <path>            Lower every design document under path (or one file)

Options:
  -v, --verbose     Debug logging and per-design progress
  -c, --config      Specify config file: hdl-force -c config.json <path>
  --json            Print the result as JSON
  --progress        Print one line per design
  --timing          Write stage timing to timing.jsonl
  --clear-cache     Remove the lowered-output cache before running
  -h, --help        Show this help message

Configuration:
  hdl-force looks for configuration in:
    1. ./hdl_force.json
    2. ./.hdl_force.json
    3. <path>/hdl_force.json
    4. ~/.config/hdl_force/config.json

  Run 'hdl-force init' to create a default configuration file.`)
}

func runInit() {
	configPath := config.FileName

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Design file patterns")
	fmt.Println("  - Output directory and suffix")
	fmt.Println("  - Diagnostic and contract rule severities")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// run returns the process exit code.
func run(opts options) int {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", opts.configPath, err)
			return 1
		}
	} else {
		cfg, err = config.Load(opts.path)
		if err != nil {
			logger.Warn("could not load config, using defaults", zap.Error(err))
			cfg = config.DefaultConfig()
		}
	}

	d := driver.New(cfg)
	d.Logger = logger
	d.Progress = (opts.progress || opts.verbose) && !opts.jsonOutput
	d.Timing = opts.timing
	d.Out = os.Stderr

	if opts.clearCache {
		if err := d.ClearCache(opts.path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	res, runErr := d.Run(context.Background(), opts.path)
	if res == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}

	if opts.jsonOutput {
		if err := driver.WriteJSON(os.Stdout, res); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		driver.WriteText(os.Stdout, res)
		if opts.verbose {
			driver.WriteFactCounts(os.Stdout, res)
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
	if res.Failed() {
		return 1
	}
	return 0
}
