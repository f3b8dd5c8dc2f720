package core

import (
	"github.com/tmc/langchaingo/prompts"
)

// conversationTemplate flattens earlier turns into a single human prompt for
// the non-streaming chain. The agent backend plans and formats on its own.
const conversationTemplate = `{{.history}}Human: {{.input}}`

// CreateConversationPrompt creates the prompt template used by POST /chat.
// history is the output of Conversation.GetConversationContext and may be empty.
func CreateConversationPrompt() prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       conversationTemplate,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
		InputVariables: []string{"history", "input"},
	}
}
