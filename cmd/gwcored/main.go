// Command gwcored is the gateway dispatch core's demo binary: it wires
// the file-backed routestore.Watcher, the trie Manager, the health
// registry, the optional Kubernetes discovery oracle, and the admin
// introspection surface behind a single cobra root command, grounded on
// the teacher's internal/infrastructure/migrations CLI tree.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
