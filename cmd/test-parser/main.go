package main

import (
	"fmt"
	"log"
	"os"

	"github.com/billie-coop/margin/internal/parser"
)

func main() {
	p := parser.New()

	// If we have an argument, parse it
	if len(os.Args) > 1 {
		input := os.Args[1]
		result, err := p.Parse(input, "cli")
		if err != nil {
			log.Fatal(err)
		}
		printResult(input, result)
		return
	}

	fmt.Println("🧪 margin response parser")
	fmt.Println("=========================")
	fmt.Println()

	examples := []string{
		// Schema A, bare
		`{"comments": [{"line_number": 3, "comment": "This sentence runs on. Consider splitting it."}]}`,

		// Schema B, bare
		`[{"lineRange": [4, 2], "title": "Repetition", "description": "Lines 3-5 say the same thing."}]`,

		// Fenced block
		"Here are my notes:\n\n```json\n{\"comments\": [{\"line_number\": 1, \"comment\": \"Strong opening.\"}]}\n```",

		// Embedded in prose
		`Sure! {"comments": [{"line_number": 2, "comment": "Typo: 'teh'."}]} Let me know if you want more.`,

		// Nothing to say
		`{"comments": []}`,

		// Not JSON at all
		`The document looks fine to me.`,
	}

	for i, example := range examples {
		fmt.Printf("Example %d:\n", i+1)
		fmt.Println("─────────")

		result, err := p.Parse(example, fmt.Sprintf("example-%d", i+1))
		if err != nil {
			fmt.Printf("Input: %q\n", truncate(example, 60))
			fmt.Printf("ERROR: %v\n\n", err)
			continue
		}

		printResult(example, result)
		fmt.Println()
	}
}

func printResult(input string, result *parser.Result) {
	fmt.Printf("Input: %q\n", truncate(input, 60))
	fmt.Printf("Schema: %s  Method: %s\n", result.Schema, result.Method)

	if result.Empty() {
		fmt.Println("Annotations: none")
		return
	}

	fmt.Printf("Annotations: %d\n", len(result.Annotations))
	for i, a := range result.Annotations {
		fmt.Printf("  [%d] %s\n", i+1, a)
		if a.Body != a.Title {
			fmt.Printf("      %s\n", truncate(a.Body, 70))
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
