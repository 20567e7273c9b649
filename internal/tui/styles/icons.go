package styles

const (
	CheckIcon   string = "✓"
	ErrorIcon   string = "✗"
	WarningIcon string = "⚠"
	InfoIcon    string = "ℹ"

	// Gutter marker for lines covered by an annotation
	MarkerIcon string = "●"

	// Engine states
	IdleIcon       string = "○"
	DebouncingIcon string = "◔"
	RequestingIcon string = "◉"
)
