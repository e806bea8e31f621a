package chat

import (
	_ "embed"
	"fmt"
	"os"

	"sciphi-chat/pkg/api"

	"gopkg.in/yaml.v2"
)

//go:embed starter_prompts.yaml
var starterPromptsYAML []byte

// LoadStarterPrompts returns the suggestions shown for an empty conversation,
// read from path when it is set and from the built-in list otherwise.
func LoadStarterPrompts(path string) ([]api.StarterPrompt, error) {
	data := starterPromptsYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading starter prompts file %s: %w", path, err)
		}
	}

	raw := struct {
		Prompts []api.StarterPrompt `yaml:"prompts"`
	}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing starter prompts: %w", err)
	}

	for i, p := range raw.Prompts {
		if p.Prompt == "" {
			return nil, fmt.Errorf("starter prompt %d has no prompt text", i)
		}
	}
	return raw.Prompts, nil
}
