package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/home"
	"github.com/jackzampolin/talespin/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "talespin",
	Short: "Template-driven story generation with narration and illustration",
	Long: `Talespin writes long-form stories chapter by chapter with an LLM.

Each story follows a template (genre, chapter outline, form fields) and
streams to the client as it is written. Finished stories can be:
  - Read as styled HTML
  - Narrated into WAV chunks with a rate-limited TTS queue
  - Illustrated segment by segment with a shared visual style`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.talespin/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "talespin home directory (default: ~/.talespin)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format and load .env files before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
		loadEnv()
	}

	rootCmd.AddCommand(versionCmd)
}

// loadEnv loads ./.env and the home .env without overriding variables
// already set in the environment.
func loadEnv() {
	files := []string{home.EnvFileName}
	if h, err := home.New(homeDir); err == nil && h.EnvExists() {
		files = append(files, h.EnvPath())
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// getHome returns the home directory, creating it if needed.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// configPath returns --config, or the home config file when it exists.
func configPath(h *home.Dir) string {
	if cfgFile != "" {
		return cfgFile
	}
	if homeDir != "" && h.ConfigExists() {
		return h.ConfigPath()
	}
	return ""
}
