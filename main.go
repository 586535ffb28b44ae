package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kasuganosora/farmquest/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "farmquest",
	Short: "Sustainable farming quests, quizzes and community feed",
	// serve is the default action
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/config.yaml", "config file (YAML); empty uses defaults and environment")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging, overrides server.debug")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportLeaderboardCmd)
	rootCmd.AddCommand(importQuizCmd)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if debug {
		cfg.Server.Debug = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
