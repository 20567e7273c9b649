package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/llm"
	"github.com/billie-coop/margin/internal/parser"
)

// TestPrompt is a document we want annotated.
type TestPrompt struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Lines       []string `json:"lines"`
	Changed     []int    `json:"changed"`
}

// CapturedResponse represents a model's response to a prompt.
type CapturedResponse struct {
	CapturedAt time.Time `json:"captured_at"`
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	Duration   float64   `json:"duration_seconds"`
	Parsed     int       `json:"parsed_annotations"`
	ParseError string    `json:"parse_error,omitempty"`
}

var testPrompts = ExtendedTestPrompts

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: capture-responses <output-dir> [endpoint]")
		fmt.Println("Example: capture-responses testdata/captured http://localhost:1234")
		os.Exit(1)
	}

	outputDir := os.Args[1]
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatal(err)
	}

	opts := []llm.Option{}
	if len(os.Args) > 2 {
		opts = append(opts, llm.WithEndpoint(os.Args[2]))
	}
	client := llm.NewLMStudio(opts...)

	ctx := context.Background()
	modelList, err := client.Models(ctx)
	if err != nil {
		log.Fatal("LM Studio is not running: ", err)
	}
	if len(modelList) == 0 {
		log.Fatal("No models loaded in LM Studio")
	}

	fmt.Printf("Found %d models in LM Studio\n", len(modelList))
	for _, model := range modelList {
		fmt.Printf("  - %s\n", model.ID)
	}
	fmt.Println()

	p := parser.New()

	for _, model := range modelList {
		modelID := model.ID
		fmt.Printf("\n=== Testing with model: %s ===\n", modelID)

		modelDir := filepath.Join(outputDir, sanitizeFilename(modelID))
		if err := os.MkdirAll(modelDir, 0o755); err != nil {
			log.Printf("Failed to create dir for %s: %v", modelID, err)
			continue
		}

		client := llm.NewLMStudio(append(opts, llm.WithModel(modelID))...)

		for i, tp := range testPrompts {
			fmt.Printf("[%d/%d] %s... ", i+1, len(testPrompts), tp.Name)
			prompt := llm.BuildPrompt(changes.Snapshot{Lines: tp.Lines}, changes.ChangeSet(tp.Changed))
			capture(ctx, client, p, modelID, prompt, filepath.Join(modelDir, tp.Name+".json"))

			// Small delay between requests to not overwhelm LM Studio
			time.Sleep(200 * time.Millisecond)
		}

		criticalPrompts := []string{"prose_typo", "code_bug", "empty_clean_text"}
		for variant, system := range SystemPromptVariations {
			variantDir := filepath.Join(modelDir, variant)
			if err := os.MkdirAll(variantDir, 0o755); err != nil {
				log.Printf("Failed to create dir %s: %v", variantDir, err)
				continue
			}

			fmt.Printf("\nTesting with %s system prompt...\n", variant)
			for _, name := range criticalPrompts {
				tp, ok := findPrompt(name)
				if !ok {
					continue
				}
				fmt.Printf("  %s... ", tp.Name)
				prompt := llm.BuildPrompt(changes.Snapshot{Lines: tp.Lines}, changes.ChangeSet(tp.Changed))
				prompt.System = system
				capture(ctx, client, p, modelID, prompt, filepath.Join(variantDir, tp.Name+".json"))
			}
		}
	}

	fmt.Println("\n✅ Response capture complete!")
	fmt.Printf("Responses saved to: %s\n", outputDir)
}

func capture(ctx context.Context, client *llm.LMStudio, p *parser.Parser, modelID string, prompt llm.Prompt, filename string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	response, err := client.Submit(ctx, "capture", prompt)
	cancel()
	duration := time.Since(start).Seconds()

	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}

	captured := CapturedResponse{
		CapturedAt: time.Now(),
		Model:      modelID,
		Prompt:     prompt.User,
		Response:   response,
		Duration:   duration,
	}
	if result, err := p.Parse(response, "capture"); err != nil {
		captured.ParseError = err.Error()
	} else {
		captured.Parsed = len(result.Annotations)
	}

	data, err := json.MarshalIndent(captured, "", "  ")
	if err != nil {
		fmt.Printf("ERROR encoding: %v\n", err)
		return
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		fmt.Printf("ERROR saving: %v\n", err)
		return
	}

	status := fmt.Sprintf("%d annotations", captured.Parsed)
	if captured.ParseError != "" {
		status = "unparseable"
	}
	fmt.Printf("OK (%.1fs, %s)\n", duration, status)
}

func findPrompt(name string) (TestPrompt, bool) {
	for _, p := range testPrompts {
		if p.Name == name {
			return p, true
		}
	}
	return TestPrompt{}, false
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}
