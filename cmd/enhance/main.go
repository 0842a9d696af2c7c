// Command enhance runs one product photo through the enhancer from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/ai"
	"github.com/shinyyama/abracadabra/internal/config"
	"github.com/shinyyama/abracadabra/internal/imageutil"
	"github.com/shinyyama/abracadabra/internal/logging"
	"github.com/shinyyama/abracadabra/internal/session"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	logging.Init(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Turn a product photo into a studio-style e-commerce image",
		Example: `  enhance --input photo.jpg --output out.png --background Marble --effect Smoke
  enhance --text "New Arrival" --font "Poppins (Bold)" --font-size Large --print-prompt`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}
	f.register(cmd)
	return cmd
}

func run(cmd *cobra.Command, f flags) error {
	ctrl := session.NewController(nil)
	if err := f.apply(ctrl); err != nil {
		return err
	}

	if f.printPrompt {
		fmt.Fprintln(cmd.OutOrStdout(), ctrl.Prompt())
		return nil
	}
	if f.input == "" {
		return fmt.Errorf("--input is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	modelName := cfg.GeminiModel
	if f.model != "" {
		modelName = f.model
	}
	client, err := ai.NewImageClient(cmd.Context(), cfg.GeminiTransport, cfg.GeminiAPIKey, modelName, cfg.GeminiTimeout())
	if err != nil {
		return err
	}
	return enhance(cmd, client, f)
}

func enhance(cmd *cobra.Command, client session.Transformer, f flags) error {
	ctrl := session.NewController(client)
	if err := f.apply(ctrl); err != nil {
		return err
	}
	if err := loadImage(ctrl, f.input); err != nil {
		return err
	}

	log.Info().Str("input", f.input).Msg("enhancing")
	attempt, err := ctrl.Submit(cmd.Context())
	if err != nil {
		return err
	}
	res, ok := ctrl.Result()
	if !ok {
		return fmt.Errorf("no result produced")
	}

	out := f.output
	if out == "" {
		out = "enhanced-product" + imageutil.Extension(res.MIMEType)
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.Info().Str("output", out).Str("mime", res.MIMEType).Dur("elapsed", attempt.Elapsed).Msg("saved")
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
