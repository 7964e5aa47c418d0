// Package cli parses command-line arguments and runs program files.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/born-ml/prims/internal/executor"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	ProgramPath string
	// Executor overrides the run block when not empty.
	Executor  string
	Engine    string
	LogLevel  string
	LogFormat string
	// PrintGraph prints the traced graph before executing it.
	PrintGraph bool
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("prims", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
prims - trace numeric functions to primitives and run them directly or fused.

Usage:
  prims [options] [PROGRAM]

Arguments:
  PROGRAM
    Path to an .hcl program file.

Options:
`)
		flagSet.PrintDefaults()
	}

	programFlag := flagSet.String("program", "", "Path to the program file.")
	executorFlag := flagSet.String("executor", "", "Executor: 'direct' or 'fusion'. Overrides the run block.")
	engineFlag := flagSet.String("engine", "webgpu", "Fusion engine. Options: 'webgpu' or 'host'.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	graphFlag := flagSet.Bool("graph", false, "Print the traced graph before executing it.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := *programFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	engine := strings.ToLower(*engineFlag)
	if engine != "webgpu" && engine != "host" {
		return nil, false, &ExitError{Code: 2, Message: "invalid engine: must be 'webgpu' or 'host'"}
	}

	if *executorFlag != "" {
		if _, err := executor.Resolve(*executorFlag); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
	}

	config := &Config{
		ProgramPath: path,
		Executor:    *executorFlag,
		Engine:      engine,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		PrintGraph:  *graphFlag,
	}
	slog.Debug("CLI parser finished successfully.", "program", path)
	return config, false, nil
}
