package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, which means
// "topic notes.log -no-cli" silently ignores -no-cli.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}

			// Non-bool flags take the next arg as their value.
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// CLIOutput formats command results as text or JSON.
type CLIOutput struct {
	jsonMode bool
	out      io.Writer
	errOut   io.Writer
}

// NewCLIOutput creates an output handler writing to out and errOut.
func NewCLIOutput(jsonMode bool, out, errOut io.Writer) *CLIOutput {
	return &CLIOutput{jsonMode: jsonMode, out: out, errOut: errOut}
}

// Print prints humanOutput, or jsonData in JSON mode.
func (c *CLIOutput) Print(humanOutput string, jsonData any) {
	if c.jsonMode {
		c.printJSON(jsonData)
		return
	}
	fmt.Fprint(c.out, humanOutput)
}

// Error prints an error message or a JSON error object.
func (c *CLIOutput) Error(message, code string) {
	if c.jsonMode {
		c.printJSON(map[string]any{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return
	}
	fmt.Fprintf(c.errOut, "Error: %s\n", message)
}

func (c *CLIOutput) printJSON(data any) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(c.errOut, "Error: failed to format JSON: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(output))
}

// Symbols for human-readable output
const (
	successSymbol = "✓"
	errorSymbol   = "✕"
)

// Error codes for JSON output
const (
	ErrCodeInvalidArgs    = "INVALID_ARGS"
	ErrCodeIO             = "IO_ERROR"
	ErrCodeCLIUnavailable = "CLI_UNAVAILABLE"
)
