// Package main writes the OpenAPI document for the consult-billing API.
// Routes are registered with stub handlers, so no database, broker or
// engine is needed.
//
// Usage:
//
//	go run ./cmd/consult-openapi > openapi.json
//	go run ./cmd/consult-openapi -yaml -output openapi.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/consult-billing/internal/http/routes"
	"github.com/jmylchreest/consult-billing/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "http://localhost:8080", "Base URL for the API server")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	data, err := generate(*baseURL, *outputYAML)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI spec: %v\n", err)
		os.Exit(1)
	}

	if *outputFile == "" {
		fmt.Print(string(data))
		return
	}
	if err := os.WriteFile(*outputFile, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing to file: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "OpenAPI spec written to %s\n", *outputFile)
}

// generate renders the document for baseURL as JSON or YAML.
func generate(baseURL string, asYAML bool) ([]byte, error) {
	api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(baseURL))
	routes.Register(api, routes.StubHandlers())

	spec := api.OpenAPI()
	if asYAML {
		return yaml.Marshal(spec)
	}
	return json.MarshalIndent(spec, "", "  ")
}
