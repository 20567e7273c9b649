// Package config provides simple, local-first configuration for margin.
//
// All configuration lives in the project's .margin/ directory:
//
//	.margin/
//	├── config.yaml        # Main configuration
//	└── .gitignore         # Keeps logs and captured responses out of git
//
// The config.yaml file holds flat settings:
//
//	provider: lmstudio
//	endpoint: http://localhost:1234
//	model: ""
//	debounce_ms: 1500
//	response_threshold: 0.8
//	minimum_text_length: 20
//	edit_event_classes: [change, insert, delete, reload]
//	requests_per_minute: 20
//	request_timeout_ms: 0
//	max_in_flight: 2
//
// Environment Variable Support:
//
// Values can reference environment variables using $VAR or ${VAR} syntax:
//
//	endpoint: ${LM_STUDIO_URL}
//	api_key: $OPENAI_API_KEY
//
// MARGIN_ENDPOINT and MARGIN_API_KEY override the file; OPENAI_API_KEY is
// used when the openai provider has no key configured.
//
// Validation:
//
// Validate reports missing credentials and out-of-range values as errors
// wrapping ErrConfig. The engine checks it once at startup and stays dormant
// when it fails.
//
// Example usage:
//
//	manager := config.NewManager("/path/to/project")
//	if err := manager.Load(); err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := manager.Get()
//	fmt.Println("debounce:", cfg.Debounce())
//
//	manager.Set("response_threshold", "0.5")
package config
