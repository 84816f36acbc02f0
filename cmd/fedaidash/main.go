// Command fedaidash serves the federal AI adoption dashboard and manages its
// data: CSV imports, backups and admin credentials.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
