package llm

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"unterminated fence", "```json\n{\"a\": 1}", "```json\n{\"a\": 1}"},
		{"fence marker only", "```", "```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNewClientFillsDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "test-key"}, zaptest.NewLogger(t))

	if c.config.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Expected default base URL, got '%s'", c.config.BaseURL)
	}
	if c.config.Model != "gpt-4o-mini" {
		t.Errorf("Expected default model, got '%s'", c.config.Model)
	}
	if c.config.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", c.config.MaxRetries)
	}
}
