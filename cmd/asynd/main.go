// Command asynd is a demonstration host process for the manager: it loads
// configuration, registers the configured ports, serves Prometheus metrics,
// and prints a periodic diagnostic report. It exists to exercise the
// package from outside its own test suite, not as a production driver
// host — real drivers embed pkg/asyn directly.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
