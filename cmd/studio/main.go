// Command studio drives the starter-kit assembly pipeline from the shell:
// generate archives, price selections, manage preview sessions, mint and
// verify download tokens, and check process configuration.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "generate":
		return runGenerateCmd(args[2:], stdout, stderr)
	case "price":
		return runPriceCmd(args[2:], stdout, stderr)
	case "preview":
		return runPreviewCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "doctor":
		return runDoctorCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: studio <command> [flags]

Commands:
  generate   Assemble a starter archive for an order
  price      Price a tier + feature selection
  preview    Manage preview sessions (provision|invalidate|drop)
  token      Download token utilities (mint|verify)
  doctor     Check process configuration
  help       Show this help

Run 'studio <command> -h' for command flags.
`)
}
