// Command reindex runs one full catalogue reindex and prints its summary as
// JSON. It exits 1 when the run fails or any document is rejected.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/catalogue-search/internal/app"
	"github.com/utafrali/catalogue-search/internal/config"
	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/pkg/logger"
)

var errRejected = errors.New("reindex finished with rejected documents")

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var tenant, language string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the catalogue search index for one tenant",
		Long: `Fetch the tenant's catalogue tree, recreate the search index and write
every product variant into it.

The run summary is printed to stdout as JSON. Logs go to stderr.
Configuration is read from the environment, as for the server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := runReindex(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), domain.ReindexRequest{
				Tenant:   tenant,
				Language: language,
			})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "reindex:", err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "catalogue tenant identifier")
	cmd.Flags().StringVar(&language, "language", "", "catalogue language (defaults to DEFAULT_LANGUAGE)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runReindex(ctx context.Context, stdout, stderr io.Writer, req domain.ReindexRequest) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(app.ServiceName+"-reindex", cfg.LogLevel, stderr)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() { _ = application.Close() }()

	result, runErr := application.Indexer().Reindex(ctx, req)
	if result != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Error("failed to write summary", slog.String("error", err.Error()))
		}
	}
	if runErr != nil {
		return runErr
	}
	if !result.Success {
		return errRejected
	}
	return nil
}
