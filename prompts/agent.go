package prompts

// AgentPromptData feeds AgentPromptTemplate.
type AgentPromptData struct {
	Instructions string
	ToolNames    []string
	// Streaming tells the model that tool progress reaches the user directly.
	Streaming bool
}

const AgentPromptTemplate = `
{{ .Instructions }}
{{ if .ToolNames }}
Available tools: {{ formatToolNames .ToolNames }}.
{{- end }}
{{ if .Streaming }}
Tools stream their progress to the user while they run. Do not repeat streamed output verbatim; summarize the result instead.
{{- end }}`

// AgentPrompt renders the developer prompt of a relaying agent.
func AgentPrompt(data AgentPromptData) (string, error) {
	return generateFromTemplate(AgentPromptTemplate, data)
}
