package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/22388o/sapio/pkg/contract"
	"github.com/22388o/sapio/pkg/template"
)

// runCompileCmd compiles one contract instance and prints the bound
// branch set as JSON.
//
// Exit codes:
//
//	0 = compiled
//	1 = compilation rejected
//	2 = usage or runtime error
func runCompileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compile", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	kind := cmd.String("kind", "", "Contract kind to compile (REQUIRED)")
	instance := cmd.String("instance", "{}", "Instance JSON, inline or @file")
	argsFlag := cmd.String("args", "", "Branch arguments as a JSON object, inline or @file")
	network := cmd.String("network", "bitcoin", "Target network")
	funds := cmd.Uint64("funds", 0, "Sats available to the contract")
	plugins := cmd.String("plugins", "", "Directory of *.wasm contract plugins")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *kind == "" {
		fmt.Fprintln(stderr, "Error: --kind is required")
		cmd.Usage()
		return 2
	}

	instanceRaw, err := readJSONArg(*instance)
	if err != nil {
		fmt.Fprintf(stderr, "Error: --instance: %v\n", err)
		return 2
	}
	var branchArgs map[string]json.RawMessage
	if *argsFlag != "" {
		raw, err := readJSONArg(*argsFlag)
		if err != nil {
			fmt.Fprintf(stderr, "Error: --args: %v\n", err)
			return 2
		}
		if err := json.Unmarshal(raw, &branchArgs); err != nil {
			fmt.Fprintln(stderr, "Error: --args must be a JSON object keyed by branch")
			return 2
		}
	}

	ctx := context.Background()
	reg, cleanup, err := buildRegistry(ctx, *plugins)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer cleanup()

	c, ok := reg.Get(*kind)
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown contract kind %q (run `sapio kinds`)\n", *kind)
		return 2
	}

	cctx := contract.NewContext(*network, template.Sats(*funds)).WithContext(ctx)
	compiled, err := c.CompileJSON(cctx, instanceRaw, branchArgs)
	if err != nil {
		if cerr, ok := contract.AsError(err); ok {
			fmt.Fprintf(stderr, "Compilation rejected: %v\n", cerr)
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(compiled, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

// readJSONArg resolves a flag value that is either inline JSON or a
// @file reference, and checks that the payload parses either way.
func readJSONArg(v string) ([]byte, error) {
	data := []byte(v)
	if strings.HasPrefix(v, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(v, "@"))
		if err != nil {
			return nil, err
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	return data, nil
}
