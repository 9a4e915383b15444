package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kerbaras/mapareas/pkg/app"
	"github.com/kerbaras/mapareas/pkg/config"
	"github.com/kerbaras/mapareas/pkg/logger"
	"github.com/kerbaras/mapareas/pkg/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v          = viper.New()
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "mapareas",
	Short: "Browse and download offline map areas",
	Long:  "Browse the preplanned map areas of an ArcGIS web map and keep offline copies of them",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(v, envFile, configFile)
		cobra.CheckErr(err)

		// The TUI owns the terminal, so logs go to a file.
		log, closeLog, err := logger.SetupFile(cfg.LogPath(), cfg.LogLevel, cfg.LogFormat)
		cobra.CheckErr(err)

		c, err := services.NewController(cfg, log)
		cobra.CheckErr(err)

		log.Info("starting", "web_map", cfg.WebMapID, "portal", cfg.PortalURL)
		err = app.NewApp(c, log).Run()
		if cerr := c.Close(); cerr != nil {
			log.Warn("failed to close", "error", cerr)
		}
		closeLog()
		cobra.CheckErr(err)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, toml or json)")
	flags.StringVar(&envFile, "env-file", ".env", "Environment file to load")
	flags.String("portal-url", "", "ArcGIS portal URL")
	flags.String("web-map-id", "", "Item id of the web map")
	flags.String("cache-dir", "", "Directory for the catalog and offline areas")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")

	for key, flag := range map[string]string{
		"portal_url": "portal-url",
		"web_map_id": "web-map-id",
		"cache_dir":  "cache-dir",
		"log_level":  "log-level",
		"log_format": "log-format",
	} {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
	}

	rootCmd.AddCommand(areasCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withController runs fn against a controller for the configured web map,
// logging to stderr. ctx ends on SIGINT or SIGTERM.
func withController(cmd *cobra.Command, fn func(ctx context.Context, c *services.Controller, log *slog.Logger) error) {
	cfg, err := config.Load(v, envFile, configFile)
	cobra.CheckErr(err)

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	c, err := services.NewController(cfg, log)
	cobra.CheckErr(err)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	err = fn(ctx, c, log)
	stop()
	if cerr := c.Close(); cerr != nil {
		log.Warn("failed to close", "error", cerr)
	}
	cobra.CheckErr(err)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
