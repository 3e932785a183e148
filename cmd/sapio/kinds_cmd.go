package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/22388o/sapio/pkg/session"
)

// runKindsCmd lists the registered contract kinds and their branches.
//
// Exit codes:
//
//	0 = listed
//	2 = usage or runtime error
func runKindsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("kinds", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	asJSON := cmd.Bool("json", false, "Emit machine-readable JSON")
	plugins := cmd.String("plugins", "", "Directory of *.wasm contract plugins")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	reg, cleanup, err := buildRegistry(ctx, *plugins)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer cleanup()

	summaries := make([]session.KindSummary, 0, len(reg.List()))
	for _, name := range reg.List() {
		c, _ := reg.Get(name)
		summaries = append(summaries, session.KindSummary{Kind: name, Branches: c.Branches()})
	}

	if *asJSON {
		out, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		fmt.Fprintln(stdout, string(out))
		return 0
	}

	for _, s := range summaries {
		fmt.Fprintf(stdout, "%s%s%s\n", ColorBold, s.Kind, ColorReset)
		for _, b := range s.Branches {
			suffix := ""
			if len(b.Schema) > 0 {
				suffix = " (takes arguments)"
			}
			fmt.Fprintf(stdout, "  %s%-12s%s %s%s\n", ColorGreen, b.Name, ColorReset, b.Kind, suffix)
		}
	}
	return 0
}
