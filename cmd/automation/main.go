// Command automation deploys strategies and bundles, manages subscriptions
// and executes strategies against a ledger snapshot.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
