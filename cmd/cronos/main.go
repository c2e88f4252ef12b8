package main

import (
	"fmt"
	"os"
	"time"

	"cronos/internal/config"
	"cronos/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cronos",
	Short: "cronos - WhatsApp Web session manager",
	Long: `cronos keeps one automated browser session per phone number logged in to
WhatsApp Web, persists its cookies between runs, captures the login QR code
when a scan is needed, and sends composite messages (image, text, audio,
document) through the web client.

Sessions that stay on the QR screen are closed after sessions.close_timeout.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		l, err := logging.Initialize(logging.Options{
			Level:       loaded.Logging.Level,
			Format:      loaded.Logging.Format,
			OutputPaths: loaded.Logging.OutputPaths(),
		})
		if err != nil {
			return err
		}

		cfg = loaded
		logger = l
		logging.Get(logging.CategoryBoot).Debug("configuration loaded",
			zap.String("path", configPath),
			zap.String("sessions_dir", cfg.Sessions.Dir))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cronos.yaml", "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(converseCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
