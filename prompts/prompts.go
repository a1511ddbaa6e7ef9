// Package prompts renders the developer prompts sent ahead of a run's history.
package prompts

import (
	"bytes"
	"strings"
	"text/template"
)

// generateFromTemplate renders any template against data.
func generateFromTemplate[T any](templateString string, data T) (string, error) {
	funcMap := template.FuncMap{
		"formatToolNames": formatToolNames,
	}

	tmpl, err := template.New("prompt").Funcs(funcMap).Parse(templateString)
	if err != nil {
		return "", err
	}
	var prompt bytes.Buffer
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt.String()), nil
}

func formatToolNames(names []string) string {
	return strings.Join(names, ", ")
}
