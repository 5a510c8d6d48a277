// File path: internal/agent/convert.go
package agent

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/nicodishanthj/testcase_agent/internal/turn"
)

// ToMessageContents converts composed turns into model messages. Images are
// sent as data URLs.
func ToMessageContents(inputs []turn.Input) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(inputs))
	for _, in := range inputs {
		msg := llms.MessageContent{Role: chatRole(in.Role)}
		if !in.IsMultimodal() {
			msg.Parts = []llms.ContentPart{llms.TextContent{Text: in.Text}}
			out = append(out, msg)
			continue
		}
		for _, part := range in.Parts {
			switch part.Type {
			case turn.PartImage:
				msg.Parts = append(msg.Parts, llms.ImageURLContent{
					URL: fmt.Sprintf("data:%s;base64,%s", part.MIMEType, part.ImageBase64),
				})
			default:
				msg.Parts = append(msg.Parts, llms.TextContent{Text: part.Text})
			}
		}
		out = append(out, msg)
	}
	return out
}

func chatRole(role string) llms.ChatMessageType {
	switch role {
	case "assistant", "ai":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}
