package endpoints

import (
	"github.com/jackzampolin/talespin/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	swagger := &SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath}
	eps := []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Template endpoints
		&ListTemplatesEndpoint{},
		&GetTemplateEndpoint{},

		// Story endpoints
		&GenerateStoryEndpoint{},
		&GenerateStoryWSEndpoint{},
		&ListStoriesEndpoint{},
		&GetStoryEndpoint{},
		&DeleteStoryEndpoint{},
		&StoryHTMLEndpoint{},

		// Narration endpoints
		&GenerateVoiceEndpoint{},
		&ListVoiceEndpoint{},
		&TTSStatusEndpoint{},

		// Illustration endpoints
		&MasterPromptEndpoint{},
		&AutoImagesEndpoint{},
		&ListImagesEndpoint{},
		&GetAssetEndpoint{},

		// Settings endpoints
		&GetLanguageEndpoint{},
		&SetLanguageEndpoint{},

		// Prompt endpoints
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
		&SetPromptEndpoint{},
		&ClearPromptEndpoint{},

		// Swagger/OpenAPI endpoints
		swagger,
		&SwaggerUIEndpoint{},

		// Static files (catch-all, must be last)
		&StaticEndpoint{},
	}
	swagger.Endpoints = eps
	return eps
}

// TemplateCommands returns endpoints for template operations.
// This groups template-related commands under "templates" subcommand.
func TemplateCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListTemplatesEndpoint{},
		&GetTemplateEndpoint{},
	}
}

// StoryCommands returns endpoints for story operations, including
// narration and illustration, grouped under "stories".
func StoryCommands() []api.Endpoint {
	return []api.Endpoint{
		&GenerateStoryEndpoint{},
		&ListStoriesEndpoint{},
		&GetStoryEndpoint{},
		&DeleteStoryEndpoint{},
		&StoryHTMLEndpoint{},
		&GenerateVoiceEndpoint{},
		&ListVoiceEndpoint{},
		&MasterPromptEndpoint{},
		&AutoImagesEndpoint{},
		&ListImagesEndpoint{},
	}
}

// SettingsCommands returns endpoints for settings operations.
func SettingsCommands() []api.Endpoint {
	return []api.Endpoint{
		&GetLanguageEndpoint{},
		&SetLanguageEndpoint{},
	}
}

// PromptCommands returns endpoints for prompt operations.
func PromptCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
		&SetPromptEndpoint{},
		&ClearPromptEndpoint{},
	}
}
