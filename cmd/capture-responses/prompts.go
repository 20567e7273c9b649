package main

// Documents sent to each model. The first line of every fixture is line 1
// in the prompt, so captured answers can be checked by eye.
var ExtendedTestPrompts = []TestPrompt{
	{
		Name:        "prose_typo",
		Description: "Short prose with an obvious typo on line 2",
		Lines: []string{
			"The quarterly report is due on Friday.",
			"Please send teh draft to the whole team.",
			"We will review it together on Monday.",
		},
		Changed: []int{1},
	},
	{
		Name:        "prose_runon",
		Description: "A run-on sentence worth splitting",
		Lines: []string{
			"# Release notes",
			"",
			"This release improves startup time and also fixes the crash on resume and also adds dark mode and also updates the icons which were getting old and also removes the legacy importer.",
			"",
			"Thanks to everyone who reported issues.",
		},
		Changed: []int{2},
	},
	{
		Name:        "code_bug",
		Description: "Go snippet with an off-by-one",
		Lines: []string{
			"func sum(xs []int) int {",
			"\ttotal := 0",
			"\tfor i := 0; i <= len(xs); i++ {",
			"\t\ttotal += xs[i]",
			"\t}",
			"\treturn total",
			"}",
		},
		Changed: []int{2, 3},
	},
	{
		Name:        "empty_clean_text",
		Description: "Nothing to comment on; expect an empty list",
		Lines: []string{
			"Milk",
			"Eggs",
			"Bread",
		},
		Changed: []int{0, 1, 2},
	},
	{
		Name:        "todo_list",
		Description: "Inconsistent list formatting",
		Lines: []string{
			"- buy milk",
			"* Call the bank",
			"- Book flights.",
			"-renew passport",
		},
		Changed: []int{3},
	},
	{
		Name:        "long_document",
		Description: "Forty lines with one contradictory sentence near the end",
		Lines:       longDocument(),
		Changed:     []int{36},
	},
}

// SystemPromptVariations lets critical prompts be retried with different
// instructions.
var SystemPromptVariations = map[string]string{
	"terse": `Reply only with JSON of the form {"comments":[{"line_number":N,"comment":"..."}]}. Use 1-based line numbers. Reply {"comments":[]} when nothing needs a comment.`,
	"ranges": `Reply only with a JSON array of {"lineRange":[start,end],"title":"...","description":"..."} objects using 0-based inclusive line ranges. Reply [] when nothing needs a comment.`,
}

func longDocument() []string {
	lines := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		switch i {
		case 3:
			lines = append(lines, "The meeting is scheduled for Tuesday at 10am.")
		case 36:
			lines = append(lines, "As agreed, the meeting is on Thursday afternoon.")
		default:
			lines = append(lines, "Background paragraph text that needs no comment.")
		}
	}
	return lines
}
