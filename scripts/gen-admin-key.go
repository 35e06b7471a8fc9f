// Command gen-admin-key generates an admin API key and the Argon2id hash
// to configure as ADMIN_KEY_HASH. The plaintext key is shown once.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/capserve/capserve/internal/auth"
)

type output struct {
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	Hash      string `json:"hash"`
}

func main() {
	var (
		env    = flag.String("env", auth.EnvLive, "Key environment: live or test")
		format = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	key, err := auth.GenerateAdminKey(*env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate key:", err)
		os.Exit(1)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(output{
			Key:       key.Plaintext,
			KeyPrefix: key.Prefix,
			Hash:      key.Hash,
		}); err != nil {
			fmt.Fprintln(os.Stderr, "encode output:", err)
			os.Exit(1)
		}
	default:
		fmt.Println("Admin API key (store it now, it is not recoverable):")
		fmt.Println()
		fmt.Println("  " + key.Plaintext)
		fmt.Println()
		fmt.Println("Key prefix (for log correlation): " + key.Prefix)
		fmt.Println()
		fmt.Println("Set the hash in the server environment:")
		fmt.Println()
		fmt.Println("  ADMIN_KEY_HASH='" + key.Hash + "'")
	}
}
