// Package docs provides generated OpenAPI documentation.
//
// Talespin API
//
//	@title			Talespin API
//	@version		1.0
//	@description	Template-driven story generation API with streaming output, narration, and illustration.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/talespin
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/talespin/serve.go -o ./swagger --parseDependency --parseInternal
