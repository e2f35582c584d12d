// pcmatrix runs matrix tasks through a bounded producer/consumer pipeline.
//
// Usage:
//
//	pcmatrix [flags] [source_dir [sink_dir]]
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	rootCmd, err := newRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
