package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SocialGouv/champollion-go/internal/application/container"
	"github.com/SocialGouv/champollion-go/internal/application/startup"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/kv"
	"github.com/spf13/cobra"
)

var (
	syntheseWait    bool
	syntheseVerbose bool
)

var syntheseCmd = &cobra.Command{
	Use:   "synthese <siret>",
	Short: "Load the synthesis of one establishment and print it as JSON",
	Long: `Runs one synthesis load against the declarations API. Without --wait the
fast tier is printed with the deferred indicators still pending. With --wait
the command blocks until every indicator settled; Ctrl-C cancels the pending
ones and prints what is available.`,
	Args: cobra.ExactArgs(1),
	RunE: runSynthese,
}

func init() {
	syntheseCmd.Flags().BoolVar(&syntheseWait, "wait", false, "Wait for the deferred indicators")
	syntheseCmd.Flags().BoolVarP(&syntheseVerbose, "verbose", "v", false, "Log to stderr")
}

func runSynthese(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewDiscardLogger()
	if syntheseVerbose {
		if logger, err = startup.NewLogger(cfg); err != nil {
			return err
		}
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	appContainer, err := container.NewContainer(cfg, logger, store)
	if err != nil {
		return err
	}

	logger.Debug().Debug("Running synthese command", "siret", args[0], "apiUrl", cfg.APIURL, "wait", syntheseWait)

	load, err := appContainer.SynthesisService.Load(ctx, args[0])
	if err != nil {
		return err
	}

	if syntheseWait {
		select {
		case <-load.Done():
		case <-ctx.Done():
			load.Cancel()
			<-load.Done()
			fmt.Fprintln(cmd.ErrOrStderr(), "interrupted: pending indicators canceled")
		}
	}

	return printJSON(cmd, load.Snapshot())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

