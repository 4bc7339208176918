package endpoints

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/version"
)

// SwaggerEndpoint serves the OpenAPI spec. The swag-generated file at
// SpecPath wins; without it a route index is built from Endpoints.
type SwaggerEndpoint struct {
	// SpecPath is the path to the swagger.json file
	SpecPath string
	// Endpoints are the registered routes, for the fallback index.
	Endpoints []api.Endpoint
}

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		OpenAPI spec
//	@Description	Serve the generated swagger.json, or a route index when it has not been generated
//	@Tags			docs
//	@Produce		json
//	@Success		200
//	@Router			/swagger.json [get]
func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	specPath := e.SpecPath
	if specPath == "" {
		// Default to docs/swagger/swagger.json relative to working dir
		specPath = "docs/swagger/swagger.json"
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		data, err = json.Marshal(routeIndex(e.Endpoints))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(data)
}

// routeIndex describes eps as a minimal Swagger 2.0 document. Operations
// carry the CLI command's short help as their summary and are tagged by
// the first path segment under /api.
func routeIndex(eps []api.Endpoint) map[string]any {
	paths := map[string]map[string]any{}
	for _, ep := range eps {
		method, path, _ := ep.Route()
		if strings.Contains(path, "{path...}") {
			continue
		}
		path = strings.ReplaceAll(path, "...}", "}")

		op := map[string]any{
			"tags":      []string{routeTag(path)},
			"responses": map[string]any{"200": map[string]any{"description": "OK"}},
		}
		if cmd := ep.Command(func() string { return "" }); cmd != nil {
			op["summary"] = cmd.Short
		}
		var params []map[string]any
		for _, seg := range strings.Split(path, "/") {
			if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
				params = append(params, map[string]any{
					"name": strings.Trim(seg, "{}"), "in": "path", "required": true, "type": "string",
				})
			}
		}
		if len(params) > 0 {
			op["parameters"] = params
		}

		if paths[path] == nil {
			paths[path] = map[string]any{}
		}
		paths[path][strings.ToLower(method)] = op
	}

	tags := map[string]bool{}
	for _, ops := range paths {
		for _, op := range ops {
			tags[op.(map[string]any)["tags"].([]string)[0]] = true
		}
	}
	tagNames := make([]string, 0, len(tags))
	for t := range tags {
		tagNames = append(tagNames, t)
	}
	sort.Strings(tagNames)
	tagList := make([]map[string]string, 0, len(tagNames))
	for _, t := range tagNames {
		tagList = append(tagList, map[string]string{"name": t})
	}

	return map[string]any{
		"swagger": "2.0",
		"info": map[string]any{
			"title":   "Talespin API",
			"version": version.GitRelease,
		},
		"basePath": "/",
		"tags":     tagList,
		"paths":    paths,
	}
}

// routeTag names the group of an API path: /api/stories/{id} is "stories",
// anything outside /api is "system".
func routeTag(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return "system"
	}
	tag, _, _ := strings.Cut(rest, "/")
	return tag
}

func (e *SwaggerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch OpenAPI spec from server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var spec map[string]any
			if err := client.Get(ctx, "/swagger.json", &spec); err != nil {
				return err
			}

			if outputFile != "" {
				return api.OutputToFile(spec, outputFile)
			}
			return api.Output(spec)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path")
	return cmd
}

// SwaggerUIEndpoint serves Swagger UI.
type SwaggerUIEndpoint struct{}

func (e *SwaggerUIEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger/", e.handler
}

func (e *SwaggerUIEndpoint) RequiresInit() bool { return false }

func (e *SwaggerUIEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
  <title>Talespin API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger.json',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

func (e *SwaggerUIEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:    "swagger-ui",
		Hidden: true,
		Short:  "Open Swagger UI in browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("Open in browser:", getServerURL()+"/swagger/")
			return nil
		},
	}
}

// GetSwaggerSpecPath returns the path to swagger.json based on executable location.
func GetSwaggerSpecPath() string {
	// Try relative to executable first
	if exe, err := os.Executable(); err == nil {
		specPath := filepath.Join(filepath.Dir(exe), "docs", "swagger", "swagger.json")
		if _, err := os.Stat(specPath); err == nil {
			return specPath
		}
	}
	// Fall back to working directory
	return "docs/swagger/swagger.json"
}
