package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// genkey prints a fresh random secret. With no arguments it emits a
// SECRET_KEY suitable for the server environment; "webhook" emits a
// whsec_-prefixed signing secret for a webhook subscription.
func main() {
	kind := "secret"
	if len(os.Args) > 1 {
		kind = os.Args[1]
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	raw := hex.EncodeToString(buf)

	switch kind {
	case "secret":
		fmt.Printf("SECRET_KEY=%s\n", raw)
	case "webhook":
		fmt.Printf("WEBHOOK_SECRET=whsec_%s\n", raw)
	default:
		fmt.Fprintf(os.Stderr, "unknown key kind: %s (use: secret, webhook)\n", kind)
		os.Exit(1)
	}
}
