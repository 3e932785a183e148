package main

import (
	"fmt"
	"io"
	"os"

	"github.com/22388o/sapio/pkg/plugin"
)

// Version is the engine release reported by the CLI.
const Version = "0.1.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		return startServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return startServer(stderr)
	case "compile":
		return runCompileCmd(args[2:], stdout, stderr)
	case "kinds":
		return runKindsCmd(args[2:], stdout, stderr)
	case "schema":
		return runSchemaCmd(args[2:], stdout, stderr)
	case "keys":
		return runKeysCmd(args[2:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "sapio %s (engine api %s)\n", Version, plugin.EngineAPIVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return startServer(stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sSapio Engine %s%s\n", ColorBold+ColorBlue, "v"+Version, ColorReset)
	fmt.Fprintf(w, "%sContracts declare. The engine binds.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  sapio <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "ENGINE")
	printCommand(w, "serve", "Run the compile API server (default)")
	printCommand(w, "compile", "Compile a contract instance to templates")

	printSection(w, "INTROSPECTION")
	printCommand(w, "kinds", "List contract kinds and their branches")
	printCommand(w, "schema", "Print a kind's instance or branch argument schema")
	printCommand(w, "keys", "Print the engine's receipt verification key")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}
