// Command resolver serves and inspects model resolution for the configured
// providers.
//
// It reads configuration from environment variables, a .env file or
// config.yaml in the working directory.
//
// Quick-start (local Ollama as the default provider):
//
//	OLLAMA_BASE_URL=http://localhost:11434 ./resolver serve
//
// See .env.example for all available configuration variables.
package main

import "github.com/nulpointcorp/model-resolver/internal/cmd"

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	cmd.Execute(version)
}
