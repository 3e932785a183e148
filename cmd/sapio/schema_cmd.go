package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// runSchemaCmd prints a kind's instance schema, or a branch's argument
// schema when --branch is given.
//
// Exit codes:
//
//	0 = schema printed
//	1 = kind or branch has no such schema
//	2 = usage or runtime error
func runSchemaCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("schema", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	kind := cmd.String("kind", "", "Contract kind to inspect (REQUIRED)")
	branch := cmd.String("branch", "", "Branch name; omit for the instance schema")
	plugins := cmd.String("plugins", "", "Directory of *.wasm contract plugins")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *kind == "" {
		fmt.Fprintln(stderr, "Error: --kind is required")
		cmd.Usage()
		return 2
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
		return 1
	}

	if *branch == "" {
		s := c.InstanceSchema()
		if s == nil {
			fmt.Fprintf(stderr, "Error: kind %q declares no instance schema\n", *kind)
			return 1
		}
		return printJSON(stdout, stderr, s.Raw())
	}

	for _, b := range c.Branches() {
		if b.Name != *branch {
			continue
		}
		if len(b.Schema) == 0 {
			fmt.Fprintf(stderr, "Error: branch %q takes no arguments\n", *branch)
			return 1
		}
		return printJSON(stdout, stderr, b.Schema)
	}
	fmt.Fprintf(stderr, "Error: kind %q has no branch %q\n", *kind, *branch)
	return 1
}

func printJSON(stdout, stderr io.Writer, raw json.RawMessage) int {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, buf.String())
	return 0
}
