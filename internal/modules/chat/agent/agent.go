package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	"github.com/yungbote/rag-backend/internal/observability"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

// Sink receives what the caller sees while a turn runs.
type Sink interface {
	Text(delta string) error
	ToolResult(artifact json.RawMessage) error
}

type Result struct {
	Messages []conversation.Message
	Answer   string
	Warnings []error
}

type Agent struct {
	log      *logger.Logger
	model    Model
	toolbox  *Toolbox
	messages conversation.MessageLog
	history  conversation.HistoryIndex
	metrics  *observability.Metrics
	now      func() time.Time
}

func New(log *logger.Logger, model Model, toolbox *Toolbox, messages conversation.MessageLog, history conversation.HistoryIndex, metrics *observability.Metrics) (*Agent, error) {
	if model == nil || messages == nil || history == nil {
		return nil, fmt.Errorf("agent: model, message log and history index are required: %w", pkgerrors.ErrInvalidConfig)
	}
	if toolbox == nil {
		toolbox = &Toolbox{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Agent{
		log:      log.With("component", "Agent"),
		model:    model,
		toolbox:  toolbox,
		messages: messages,
		history:  history,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Run executes one user turn on the thread named by cfg. Effects run one at a time in
// the order Transition produced them. Nothing is persisted unless the turn completes.
func (a *Agent) Run(ctx context.Context, cfg conversation.RunConfig, input string, sink Sink) (res Result, err error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	ctx = conversation.WithRunConfig(ctx, cfg)
	ctx, span := observability.StartSpan(ctx, "agent.Run", attribute.String("thread_id", cfg.ThreadID))
	defer span.End()

	log := a.log.With("thread_id", cfg.ThreadID, "user_id", cfg.UserID, "interaction_id", cfg.InteractionID)
	start := a.now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = pkgerrors.Code(err)
			span.RecordError(err)
		case len(res.Warnings) > 0:
			outcome = "warned"
		}
		a.metrics.ObserveTurn(outcome, time.Since(start))
	}()

	history, err := a.messages.Load(ctx, cfg.Key())
	if err != nil {
		return Result{}, fmt.Errorf("load thread: %w", err)
	}

	turn, pending := Start(cfg, history, conversation.Human(input), a.now())
	for len(pending) > 0 {
		eff := pending[0]
		pending = pending[1:]

		var ev Event
		switch e := eff.(type) {
		case CallModel:
			var specs []ToolSpec
			if e.WithTools {
				specs = a.toolbox.Specs()
			}
			msg, callErr := a.model.Stream(ctx, e.Messages, specs, sink.Text)
			if callErr != nil {
				ev = StepFailed{Err: classifyModelErr(callErr)}
			} else {
				ev = ModelResponded{Message: msg, At: a.now()}
			}
		case ExecuteTools:
			msgs, toolErr := a.toolbox.Execute(ctx, e.Calls)
			if toolErr != nil {
				ev = StepFailed{Err: toolErr}
			} else {
				ev = ToolsCompleted{Messages: msgs, At: a.now()}
			}
		case EmitToolResults:
			for _, m := range e.Messages {
				if len(m.Artifact) == 0 {
					continue
				}
				if sinkErr := sink.ToolResult(m.Artifact); sinkErr != nil {
					ev = StepFailed{Err: sinkErr}
					break
				}
			}
		case RecordHistory:
			if recErr := a.history.Record(ctx, cfg.UserID, cfg.ThreadID, a.now()); recErr != nil {
				log.Warn("record conversation history failed", "error", recErr)
			}
		case Warn:
			log.Warn("turn warning", "error", e.Err)
			if errors.Is(e.Err, pkgerrors.ErrToolLoopViolation) {
				a.metrics.IncToolLoopViolation()
			}
			res.Warnings = append(res.Warnings, e.Err)
		case Persist:
			if perr := a.messages.Append(ctx, cfg.Key(), e.Messages); perr != nil {
				return Result{}, fmt.Errorf("persist turn: %w", perr)
			}
		case Fail:
			log.Warn("turn failed", "error", e.Err, "state", turn.State.String())
			return Result{}, e.Err
		}

		if ev != nil {
			var next []Effect
			turn, next = Transition(turn, ev)
			if turn.State == Done {
				// Effects queued before the turn ended must not run.
				pending = next
			} else {
				pending = append(pending, next...)
			}
		}
	}

	res.Messages = turn.Messages()
	if last, ok := turn.Log.Last(); ok && last.Role == conversation.RoleAI {
		res.Answer = last.Content
	}
	log.Debug("turn complete", "appended", len(res.Messages), "tool_rounds", turn.ToolRounds)
	return res, nil
}

func classifyModelErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if pkgerrors.Code(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %w", pkgerrors.ErrUpstreamModel, err)
}
