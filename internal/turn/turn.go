// File path: internal/turn/turn.go
package turn

import (
	"fmt"
	"strings"

	"github.com/nicodishanthj/testcase_agent/internal/attachment"
	"github.com/nicodishanthj/testcase_agent/internal/session"
)

// Part types for multimodal input.
const (
	PartText  = "text"
	PartImage = "image"
)

// Part is one element of a multimodal user turn.
type Part struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// Input is a single role-tagged message handed to the agent runtime. When
// Parts is non-empty it supersedes Text.
type Input struct {
	Role  string `json:"role"`
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// IsMultimodal reports whether the input carries structured parts.
func (in Input) IsMultimodal() bool { return len(in.Parts) > 0 }

// PlainText returns the concatenated text of the input, ignoring images.
func (in Input) PlainText() string {
	if !in.IsMultimodal() {
		return in.Text
	}
	var texts []string
	for _, part := range in.Parts {
		if part.Type == PartText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Turn pairs what the agent receives with what gets persisted as the user
// message.
type Turn struct {
	Input  Input
	Record string
}

// ChatMessage is one entry of a stateless chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const editDelimiter = "===================="

// ComposeNew builds the first turn of a conversation from a requirement.
// The prompt only names the attachment; its display text goes into the
// persisted record.
func ComposeNew(title, requirement string, att *attachment.Descriptor) Turn {
	lines := []string{
		"**Title:** " + strings.TrimSpace(title),
		"**PBI requirement:** " + strings.TrimSpace(requirement),
	}
	if att != nil {
		lines = append(lines, "**Has attachment:** yes", "**Attachment:** "+att.FileName)
	} else {
		lines = append(lines, "**Has attachment:** no")
	}
	prompt := strings.Join(lines, "\n\n")

	record := prompt
	if att != nil && att.DisplayText != "" {
		record += "\n\n**Attachment content:** " + att.DisplayText
	}
	return Turn{Input: userInput(prompt, att), Record: record}
}

// ComposeEdit replays the conversation as a transcript and appends the
// edit instruction with a checklist for the agent.
func ComposeEdit(history []session.Message, prompt string, att *attachment.Descriptor) Turn {
	prompt = strings.TrimSpace(prompt)

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, msg := range history {
		b.WriteString("\n")
		b.WriteString(roleLabel(msg.Role))
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s EDIT REQUEST %s\n", editDelimiter, editDelimiter)
	b.WriteString(prompt)
	b.WriteString("\n")
	if att != nil {
		fmt.Fprintf(&b, "Attachment: %s\n", att.FileName)
	}
	fmt.Fprintf(&b, "%s%s%s\n", editDelimiter, strings.Repeat("=", len(" EDIT REQUEST ")), editDelimiter)
	b.WriteString("Before answering:\n")
	b.WriteString("1. Understand the prior context of the conversation above.\n")
	b.WriteString("2. Apply the requested edit to the previous result.\n")
	b.WriteString("3. Present the complete updated result.\n")
	b.WriteString("4. Explain what changed if it is not obvious.\n")
	b.WriteString("5. Respond in the language used in this conversation.")

	record := "[EDIT REQUEST] " + prompt
	if att != nil && att.DisplayText != "" {
		record += "\n\n" + att.DisplayText
	}
	return Turn{Input: userInput(b.String(), att), Record: record}
}

// FromChat converts a stateless chat history into agent inputs, dropping
// entries with empty content.
func FromChat(messages []ChatMessage) []Input {
	out := make([]Input, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "" {
			role = session.RoleUser
		}
		out = append(out, Input{Role: role, Text: msg.Content})
	}
	return out
}

func userInput(text string, att *attachment.Descriptor) Input {
	if !att.IsImage() {
		return Input{Role: session.RoleUser, Text: text}
	}
	return Input{
		Role: session.RoleUser,
		Parts: []Part{
			{Type: PartText, Text: text},
			{Type: PartImage, ImageBase64: att.Base64Payload, MIMEType: att.MIMEType},
		},
	}
}

func roleLabel(role string) string {
	switch role {
	case session.RoleAssistant:
		return "🤖 ASSISTANT:"
	case session.RoleUser:
		return "👤 USER:"
	default:
		return strings.ToUpper(role) + ":"
	}
}
