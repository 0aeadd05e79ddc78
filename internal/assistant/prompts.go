package assistant

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts
var promptFiles embed.FS

const (
	promptFirstCall  = "first_call"
	promptSecondCall = "second_call"
)

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(name string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return string(content), nil
}

// LoadPromptWithContext loads a prompt and fills {{.Name}} placeholders in a
// single pass, so values that look like placeholders are left alone.
func LoadPromptWithContext(name string, vars map[string]string) (string, error) {
	content, err := LoadPrompt(name)
	if err != nil {
		return "", err
	}

	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, fmt.Sprintf("{{.%s}}", key), value)
	}
	return strings.NewReplacer(pairs...).Replace(content), nil
}
