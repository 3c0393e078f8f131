package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hollis/envoy-ai-agent/internal/tools"
)

// RegisterTool adds the web_fetch tool to the registry.
func RegisterTool(reg *tools.Registry, f *Fetcher) {
	reg.Register(&tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text content. Use for research and looking up current information.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL to fetch.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters of text to return. Default: 50000.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, _ := args["url"].(string)
			if url == "" {
				return "", fmt.Errorf("web_fetch: url is required")
			}

			maxChars := 0
			if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
				maxChars = int(mc)
			}

			page, err := f.Fetch(ctx, url, maxChars)
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(page)
			if err != nil {
				return fmt.Sprintf("Title: %s\n\n%s", page.Title, page.Text), nil
			}
			return string(out), nil
		},
	})
}
