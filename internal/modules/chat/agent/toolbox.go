package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools"
	"github.com/xeipuuv/gojsonschema"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

// ArtifactTool is a langchaingo tool that also declares its argument schema and returns a
// structured artifact next to its text output. Plain tools.Tool values are accepted too:
// they take a single string argument and are run through Call.
type ArtifactTool interface {
	tools.Tool
	Parameters() map[string]any
	Invoke(ctx context.Context, args json.RawMessage) (content string, artifact json.RawMessage, err error)
}

// PlainToolInput is the argument a plain tool receives its Call input under.
const PlainToolInput = "input"

func plainToolParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{PlainToolInput: map[string]any{"type": "string"}},
		"required":   []any{PlainToolInput},
	}
}

func parametersOf(t tools.Tool) map[string]any {
	if at, ok := t.(ArtifactTool); ok {
		return at.Parameters()
	}
	return plainToolParameters()
}

type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Toolbox struct {
	order   []string
	tools   map[string]tools.Tool
	schemas map[string]*gojsonschema.Schema
}

func NewToolbox(ts ...tools.Tool) (*Toolbox, error) {
	b := &Toolbox{
		tools:   map[string]tools.Tool{},
		schemas: map[string]*gojsonschema.Schema{},
	}
	for _, t := range ts {
		name := t.Name()
		if _, dup := b.tools[name]; dup {
			return nil, fmt.Errorf("toolbox: duplicate tool %q: %w", name, pkgerrors.ErrInvalidConfig)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(parametersOf(t)))
		if err != nil {
			return nil, fmt.Errorf("toolbox: schema for %q: %w: %w", name, pkgerrors.ErrInvalidConfig, err)
		}
		b.order = append(b.order, name)
		b.tools[name] = t
		b.schemas[name] = schema
	}
	return b, nil
}

func (b *Toolbox) Specs() []ToolSpec {
	if b == nil {
		return nil
	}
	out := make([]ToolSpec, 0, len(b.order))
	for _, name := range b.order {
		t := b.tools[name]
		out = append(out, ToolSpec{Name: name, Description: t.Description(), Parameters: parametersOf(t)})
	}
	return out
}

// Validate checks args against the tool's schema. Empty args are treated as {}.
func (b *Toolbox) Validate(name string, args json.RawMessage) error {
	schema, ok := b.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q: %w", name, pkgerrors.ErrInvalidArgument)
	}
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("tool %q: arguments are not valid JSON: %w", name, pkgerrors.ErrInvalidArgument)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("tool %q: %s: %w", name, strings.Join(msgs, "; "), pkgerrors.ErrInvalidArgument)
	}
	return nil
}

// Execute runs the calls in order. Unknown tools and schema violations become error
// results the model can read; a failing tool fails the round.
func (b *Toolbox) Execute(ctx context.Context, calls []conversation.ToolCall) ([]conversation.Message, error) {
	out := make([]conversation.Message, 0, len(calls))
	for _, call := range calls {
		if err := b.Validate(call.Name, call.Arguments); err != nil {
			out = append(out, conversation.ToolResult(call.ID, call.Name, "Error: "+err.Error(), json.RawMessage("[]")))
			continue
		}
		args := call.Arguments
		if len(strings.TrimSpace(string(args))) == 0 {
			args = json.RawMessage("{}")
		}
		content, artifact, err := invoke(ctx, b.tools[call.Name], args)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", call.Name, err)
		}
		out = append(out, conversation.ToolResult(call.ID, call.Name, content, artifact))
	}
	return out, nil
}

func invoke(ctx context.Context, t tools.Tool, args json.RawMessage) (string, json.RawMessage, error) {
	if at, ok := t.(ArtifactTool); ok {
		return at.Invoke(ctx, args)
	}
	var in map[string]string
	if err := json.Unmarshal(args, &in); err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", PlainToolInput, err)
	}
	content, err := t.Call(ctx, in[PlainToolInput])
	return content, nil, err
}
