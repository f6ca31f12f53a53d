// Command catalogctl administers the credit catalog: schema migrations, YAML
// seed imports and exports, and offline record processing for checking a
// catalog against a saved portal response.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "catalogctl: %v\n", err)
		os.Exit(1)
	}
}
