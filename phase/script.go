package phase

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/shibukawa/sqlcycle"
)

// LoadScript reads and renders a script file with params
func LoadScript(path string, params map[string]any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", sqlcycle.ErrScriptRender, err)
	}

	return RenderScript(path, string(data), params)
}

// RenderScript renders a Go text/template. Referencing a parameter that is
// not in params is an error.
func RenderScript(name, text string, params map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", sqlcycle.ErrScriptRender, err)
	}

	if params == nil {
		params = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("%w: %w", sqlcycle.ErrScriptRender, err)
	}

	return buf.String(), nil
}

// ScriptBlocks drops comment lines and splits the rest into blocks separated
// by blank lines. Each block is sent to the server as one text.
func ScriptBlocks(text string) []string {
	var (
		blocks  []string
		current []string
	)

	flush := func() {
		if block := strings.TrimSpace(strings.Join(current, "\n")); block != "" {
			blocks = append(blocks, block)
		}

		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "--"):
		case trimmed == "":
			flush()
		default:
			current = append(current, strings.TrimRight(line, "\r"))
		}
	}

	flush()

	return blocks
}
