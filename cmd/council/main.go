// Command council audits staged planning documents with a panel of LLM
// auditors and drives the gated revision pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newCLI(os.Stdout, os.Stderr).root().ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if errors.Is(err, errGateFailed) {
		os.Exit(2)
	}
	os.Exit(1)
}
