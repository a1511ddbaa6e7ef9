package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentPrompt(t *testing.T) {
	prompt, err := AgentPrompt(AgentPromptData{
		Instructions: "Use the tools to answer the questions.",
		ToolNames:    []string{"add", "stream_numbers"},
		Streaming:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Use the tools to answer the questions.")
	assert.Contains(t, prompt, "Available tools: add, stream_numbers.")
	assert.Contains(t, prompt, "Tools stream their progress")
}

func TestAgentPromptInstructionsOnly(t *testing.T) {
	prompt, err := AgentPrompt(AgentPromptData{Instructions: "Be brief."})
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", prompt)
}
