package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbourn/rfid-gate/internal/config"
	"github.com/tbourn/rfid-gate/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rfidgate",
	Short: "RFID gate access control",
	Long: `rfidgate reads UHF RFID tags at the edge and decides at the center
whether to open the gate relay for them.

Configuration comes from an optional YAML/JSON file (--config) overlaid by
RFIDGATE_* environment variables; a .env file in the working directory is
loaded first.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		// .env is optional; real environment wins over file values.
		config.LoadDotEnv()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "rfidgate:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $RFIDGATE_CONFIG, else defaults + env)")
	rootCmd.AddCommand(centerCmd, edgeCmd, versionCmd)
}

// configPath resolves the config file from the flag or RFIDGATE_CONFIG.
func configPath() string {
	return sysutil.FirstNonEmpty(cfgFile, os.Getenv(config.EnvPrefix+"_CONFIG"))
}
