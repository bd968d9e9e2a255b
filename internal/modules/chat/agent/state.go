// Package agent runs one conversation turn as an explicit state machine. Transition is
// pure: it returns the next turn and the effects to perform. Agent executes the effects
// and feeds their outcomes back as events.
package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

// maxToolRounds bounds retrieval to a single hop per user turn.
const maxToolRounds = 1

type State int

const (
	AwaitingModel State = iota
	ToolExecuting
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case ToolExecuting:
		return "tool_executing"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Turn struct {
	Config     conversation.RunConfig
	State      State
	Log        conversation.Log
	Start      int
	ToolRounds int
	Recorded   bool
	Err        error
}

// Messages returns what this turn appended to the thread.
func (t Turn) Messages() []conversation.Message { return t.Log.Since(t.Start) }

type Event interface{ isEvent() }

type ModelResponded struct {
	Message conversation.Message
	At      time.Time
}

type ToolsCompleted struct {
	Messages []conversation.Message
	At       time.Time
}

type StepFailed struct {
	Err error
}

func (ModelResponded) isEvent() {}
func (ToolsCompleted) isEvent() {}
func (StepFailed) isEvent()     {}

type Effect interface{ isEffect() }

type CallModel struct {
	Messages  []conversation.Message
	WithTools bool
}

type ExecuteTools struct {
	Calls []conversation.ToolCall
}

type EmitToolResults struct {
	Messages []conversation.Message
}

// RecordHistory upserts the (user, thread) entry in the history index.
type RecordHistory struct{}

type Persist struct {
	Messages []conversation.Message
}

type Warn struct {
	Err error
}

type Fail struct {
	Err error
}

func (CallModel) isEffect()       {}
func (ExecuteTools) isEffect()    {}
func (EmitToolResults) isEffect() {}
func (RecordHistory) isEffect()   {}
func (Persist) isEffect()         {}
func (Warn) isEffect()            {}
func (Fail) isEffect()            {}

// Start opens a turn on top of history with the user's input.
func Start(cfg conversation.RunConfig, history conversation.Log, input conversation.Message, at time.Time) (Turn, []Effect) {
	t := Turn{
		Config: cfg,
		State:  AwaitingModel,
		Start:  history.Len(),
	}
	t.Log = history.Append(conversation.Enrich(input, cfg.InteractionID, at))
	return t, []Effect{CallModel{Messages: t.Log.Messages(), WithTools: true}}
}

func Transition(t Turn, ev Event) (Turn, []Effect) {
	if t.State == Done {
		return t, nil
	}
	if f, ok := ev.(StepFailed); ok {
		t.State = Done
		t.Err = f.Err
		return t, []Effect{Fail{Err: f.Err}}
	}

	switch t.State {
	case AwaitingModel:
		e, ok := ev.(ModelResponded)
		if !ok {
			return unexpected(t, ev)
		}
		return onModelResponded(t, e)
	case ToolExecuting:
		e, ok := ev.(ToolsCompleted)
		if !ok {
			return unexpected(t, ev)
		}
		return onToolsCompleted(t, e)
	}
	return unexpected(t, ev)
}

func onModelResponded(t Turn, e ModelResponded) (Turn, []Effect) {
	var effects []Effect
	if !t.Recorded {
		t.Recorded = true
		effects = append(effects, RecordHistory{})
	}

	msg := conversation.Enrich(e.Message, t.Config.InteractionID, e.At)
	msg.Role = conversation.RoleAI

	if msg.HasToolCalls() {
		if t.ToolRounds < maxToolRounds {
			t.Log = t.Log.Append(msg)
			t.State = ToolExecuting
			return t, append(effects, ExecuteTools{Calls: msg.ToolCalls})
		}
		names := make([]string, 0, len(msg.ToolCalls))
		for _, c := range msg.ToolCalls {
			names = append(names, c.Name)
		}
		effects = append(effects, Warn{Err: fmt.Errorf("model requested %v after %d tool round(s): %w", names, t.ToolRounds, pkgerrors.ErrToolLoopViolation)})
		msg.ToolCalls = nil
	}

	t.Log = t.Log.Append(msg)
	t.State = Done
	return t, append(effects, Persist{Messages: t.Messages()})
}

func onToolsCompleted(t Turn, e ToolsCompleted) (Turn, []Effect) {
	if len(e.Messages) == 0 {
		err := fmt.Errorf("tool round produced no results: %w", pkgerrors.ErrRetrievalFailure)
		t.State = Done
		t.Err = err
		return t, []Effect{Fail{Err: err}}
	}
	results := make([]conversation.Message, 0, len(e.Messages))
	for _, m := range e.Messages {
		m = conversation.Enrich(m, t.Config.InteractionID, e.At)
		m.Role = conversation.RoleTool
		results = append(results, m)
	}
	t.Log = t.Log.Append(results...)
	t.ToolRounds++
	t.State = AwaitingModel
	return t, []Effect{
		EmitToolResults{Messages: results},
		CallModel{Messages: GenerationPrompt(t.Log), WithTools: false},
	}
}

func unexpected(t Turn, ev Event) (Turn, []Effect) {
	err := fmt.Errorf("event %T not valid in state %s", ev, t.State)
	t.State = Done
	t.Err = err
	return t, []Effect{Fail{Err: err}}
}

// toolArtifacts concatenates the document arrays carried by tool messages.
func toolArtifacts(msgs []conversation.Message) json.RawMessage {
	var all []json.RawMessage
	for _, m := range msgs {
		if len(m.Artifact) == 0 {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(m.Artifact, &items); err != nil {
			all = append(all, m.Artifact)
			continue
		}
		all = append(all, items...)
	}
	if all == nil {
		return json.RawMessage("[]")
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return json.RawMessage("[]")
	}
	return raw
}
