package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

const (
	ToolName        = "retrieve_documents"
	toolDescription = "Retrieves documents from a user's collection. Use this to answer user query"
)

type ToolArgs struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
}

// Tool exposes the retriever to the model. The user is taken from the run config on the
// context; nothing the model sends can widen the tenant filter.
type Tool struct {
	retriever *Retriever
}

var _ tools.Tool = (*Tool)(nil)

func NewTool(r *Retriever) *Tool {
	return &Tool{retriever: r}
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string { return toolDescription }

// Parameters is the JSON Schema of the tool arguments.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query built from the user's question.",
				"minLength":   1,
			},
			"document_id": map[string]any{
				"type":        "string",
				"description": "Restrict the search to one uploaded document.",
			},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

// Call satisfies tools.Tool. input is either the JSON arguments or a bare query.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	args := json.RawMessage(input)
	if !json.Valid(args) || !strings.HasPrefix(strings.TrimSpace(input), "{") {
		args, _ = json.Marshal(ToolArgs{Query: input})
	}
	content, _, err := t.Invoke(ctx, args)
	return content, err
}

// Invoke runs a retrieval and returns the model-facing content plus the document
// artifact. Both are the same JSON array.
func (t *Tool) Invoke(ctx context.Context, raw json.RawMessage) (string, json.RawMessage, error) {
	cfg, ok := conversation.RunConfigFromContext(ctx)
	if !ok {
		return "", nil, fmt.Errorf("%s: no run config on context: %w", ToolName, pkgerrors.ErrTenantViolation)
	}
	var args ToolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", nil, fmt.Errorf("%s: decode arguments: %w", ToolName, pkgerrors.ErrInvalidArgument)
	}
	chunks, err := t.retriever.Retrieve(ctx, Query{
		Text:       args.Query,
		UserID:     cfg.UserID,
		DocumentID: args.DocumentID,
	})
	if err != nil {
		return "", nil, err
	}
	artifact, err := MarshalDocuments(Documents(chunks))
	if err != nil {
		return "", nil, err
	}
	return string(artifact), artifact, nil
}
