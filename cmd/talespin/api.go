package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Talespin server via HTTP.

These commands require a running server (talespin serve).
Use --server to specify a custom server URL.

Examples:
  talespin api health                            # Check server health
  talespin api templates list --lang en          # List templates
  talespin api stories generate --template an-mang-tam-linh --topic "..."
  talespin api stories voice <id>                # Narrate a story`,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Story template commands",
}

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "Story generation, narration, and illustration commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "UI settings commands",
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Prompt override commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

// addGroup attaches the commands of eps to group.
func addGroup(group *cobra.Command, eps []api.Endpoint) {
	for _, ep := range eps {
		if cmd := ep.Command(getServerURL); cmd != nil {
			group.AddCommand(cmd)
		}
	}
	apiCmd.AddCommand(group)
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Queue status and asset download at top level
	apiCmd.AddCommand((&endpoints.TTSStatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.GetAssetEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))

	addGroup(templatesCmd, endpoints.TemplateCommands())
	addGroup(storiesCmd, endpoints.StoryCommands())
	addGroup(settingsCmd, endpoints.SettingsCommands())
	addGroup(promptsCmd, endpoints.PromptCommands())

	rootCmd.AddCommand(apiCmd)
}
