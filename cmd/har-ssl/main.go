// Command har-ssl runs self-supervised representation learning experiments
// (TNC and CPC) on human-activity-recognition time series.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	root := &cobra.Command{
		Use:           "har-ssl",
		Short:         "Self-supervised HAR representation learning experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCPCCmd(ctx, log))
	root.AddCommand(newTNCCmd(ctx, log))

	if err := root.Execute(); err != nil {
		log.Errorw("run failed", "error", err)
		os.Exit(1)
	}
}
