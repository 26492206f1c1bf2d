package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"squish/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "squish",
	Short: "squish - shrink images with external optimizers",
	Long: "squish runs PNG, JPEG, GIF and SVG files through a chain of optimizers " +
		"and keeps the result only when it is smaller than the original.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config (or squish.yml) and
// applies the persistent flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.Debug = true
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to squish.yml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every optimizer step")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}
