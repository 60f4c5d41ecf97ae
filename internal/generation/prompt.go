package generation

import (
	"fmt"
	"strings"
)

// BuildMessages assembles the chat messages for a generation request. The
// output is a pure function of the request: same request, same messages.
func BuildMessages(req *Request) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	messages = append(messages, Message{Role: MessageRoleSystem, Content: buildSystemPrompt(req)})
	messages = append(messages, req.History...)

	if user := buildUserMessage(req); user != "" {
		messages = append(messages, Message{Role: MessageRoleUser, Content: user})
	}

	return messages
}

func buildSystemPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString(req.PersonaPrompt)

	if req.Tone != "" {
		fmt.Fprintf(&b, "\n\nRespond in a %s tone.", req.Tone)
	}

	if req.TargetStage != nil {
		fmt.Fprintf(&b, "\n\nThe conversation is moving to the %q step: %s",
			req.TargetStage.Label, req.TargetStage.Description)
		if req.CurrentStage != nil {
			fmt.Fprintf(&b, "\nThe previous step was %q: %s",
				req.CurrentStage.Label, req.CurrentStage.Description)
		}
		b.WriteString("\nProduce the content for this step based on everything the user has provided so far.")
	}

	return b.String()
}

func buildUserMessage(req *Request) string {
	var parts []string
	if req.UserText != "" {
		parts = append(parts, req.UserText)
	}
	if req.DocumentText != "" {
		parts = append(parts, "Attached document contents:\n"+req.DocumentText)
	}
	if len(parts) == 0 && req.Action != "" {
		parts = append(parts, fmt.Sprintf("Proceed with: %s", strings.ReplaceAll(req.Action, "_", " ")))
	}
	return strings.Join(parts, "\n\n")
}
