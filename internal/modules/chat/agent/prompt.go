package agent

import (
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
)

const qaInstruction = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer " +
	"the question. If you don't know the answer, say that you " +
	"don't know. You can specify the page number and the document name." +
	" Use three sentences maximum and keep the " +
	"answer concise."

// GenerationPrompt builds the answer prompt after a tool round: the QA instruction with
// the trailing tool results inlined, followed by the conversation without tool traffic.
func GenerationPrompt(log conversation.Log) []conversation.Message {
	msgs := log.Messages()

	var trailing []conversation.Message
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == conversation.RoleTool; i-- {
		trailing = append(trailing, msgs[i])
	}
	for i, j := 0, len(trailing)-1; i < j; i, j = i+1, j-1 {
		trailing[i], trailing[j] = trailing[j], trailing[i]
	}

	system := qaInstruction + "\n\n" + string(toolArtifacts(trailing))
	out := []conversation.Message{conversation.System(system)}
	for _, m := range msgs {
		switch {
		case m.Role == conversation.RoleHuman, m.Role == conversation.RoleSystem:
			out = append(out, m)
		case m.Role == conversation.RoleAI && !m.HasToolCalls():
			out = append(out, m)
		}
	}
	return out
}
