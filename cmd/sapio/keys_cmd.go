package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/22388o/sapio/pkg/config"
)

// runKeysCmd prints the public key clients use to verify compilation
// receipts, derived from SAPIO_SIGNER_SEED.
//
// Exit codes:
//
//	0 = key printed
//	2 = usage or runtime error
func runKeysCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keys", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	asJSON := cmd.Bool("json", false, "Emit machine-readable JSON")
	network := cmd.String("network", "", "Print the key derived for a network instead of the root key")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	signer, err := loadSigner(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.SignerSeed == "" {
		fmt.Fprintln(stderr, "Warning: SAPIO_SIGNER_SEED is not set; this key is ephemeral")
	}

	if *network != "" {
		signer, err = signer.DeriveForNetwork(*network)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	key := signer.PublicKey()
	if *asJSON {
		out, err := json.Marshal(map[string]string{"public_key": key})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		fmt.Fprintln(stdout, string(out))
		return 0
	}
	fmt.Fprintln(stdout, key)
	return 0
}
