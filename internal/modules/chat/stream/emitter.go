// Package stream turns a conversation turn into Server-Sent Events. The producer writes
// through Text, ToolResult and Fail; Serve drains the events onto the HTTP response.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/rag-backend/internal/observability"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/apierr"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

const ToolMessagePrefix = "TOOL_MSG:"

var (
	ErrClosed       = errors.New("stream closed")
	ErrConsumerGone = errors.New("stream consumer gone")
)

type Kind string

const (
	KindText  Kind = "text"
	KindTool  Kind = "tool"
	KindError Kind = "error"
)

type Event struct {
	Kind Kind
	Data string
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	Buffer    int
	Heartbeat time.Duration
}

func DefaultOptions() Options {
	return Options{Buffer: 64, Heartbeat: 15 * time.Second}
}

type Emitter struct {
	log     *logger.Logger
	metrics *observability.Metrics
	opts    Options

	out  chan Event
	done chan struct{}
	gone chan struct{}

	closeOnce sync.Once
	goneOnce  sync.Once
}

func New(log *logger.Logger, metrics *observability.Metrics, opts Options) *Emitter {
	def := DefaultOptions()
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = def.Heartbeat
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Emitter{
		log:     log.With("component", "StreamEmitter"),
		metrics: metrics,
		opts:    opts,
		out:     make(chan Event, opts.Buffer),
		done:    make(chan struct{}),
		gone:    make(chan struct{}),
	}
}

// Text emits a fragment of the answer. Empty fragments are dropped.
func (e *Emitter) Text(delta string) error {
	if delta == "" {
		return nil
	}
	return e.send(Event{Kind: KindText, Data: delta})
}

// ToolResult emits the retrieved documents as TOOL_MSG:<json array>.
func (e *Emitter) ToolResult(artifact json.RawMessage) error {
	if len(artifact) == 0 {
		artifact = json.RawMessage("[]")
	}
	return e.send(Event{Kind: KindTool, Data: ToolMessagePrefix + string(artifact)})
}

// Fail emits the terminal error event. The caller still owns Close.
func (e *Emitter) Fail(err error) error {
	if err == nil {
		return nil
	}
	payload, mErr := json.Marshal(ErrorPayload{Code: pkgerrors.Code(err), Message: clientMessage(err)})
	if mErr != nil {
		return mErr
	}
	return e.send(Event{Kind: KindError, Data: string(payload)})
}

// clientMessage keeps caller errors verbatim. Server-side failures are reduced to their
// taxonomy sentinel or the status text so adapter and database details stay in the logs.
func clientMessage(err error) string {
	ae := apierr.From(err)
	if ae.Status < http.StatusInternalServerError {
		return err.Error()
	}
	for _, s := range []error{
		pkgerrors.ErrUpstreamModel,
		pkgerrors.ErrRetrievalFailure,
		pkgerrors.ErrToolLoopViolation,
		context.DeadlineExceeded,
		context.Canceled,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return http.StatusText(ae.Status)
}

// Close ends the stream. Serve writes whatever is still buffered and returns.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Emitter) Done() <-chan struct{} { return e.done }

func (e *Emitter) send(ev Event) error {
	select {
	case <-e.done:
		return ErrClosed
	case <-e.gone:
		return ErrConsumerGone
	default:
	}
	select {
	case e.out <- ev:
		return nil
	case <-e.done:
		return ErrClosed
	case <-e.gone:
		return ErrConsumerGone
	}
}

func (e *Emitter) markGone() {
	e.goneOnce.Do(func() { close(e.gone) })
}

// Serve writes events to w until the emitter is closed or ctx ends. Every event is
// flushed as soon as it is written.
func (e *Emitter) Serve(ctx context.Context, w http.ResponseWriter) error {
	defer e.markGone()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flush(w)

	e.metrics.StreamOpened()
	defer e.metrics.StreamClosed()

	heartbeat := time.NewTicker(e.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Debug("stream consumer context done", "error", ctx.Err())
			return ctx.Err()
		case ev := <-e.out:
			if err := e.write(w, ev); err != nil {
				return err
			}
		case <-e.done:
			for {
				select {
				case ev := <-e.out:
					if err := e.write(w, ev); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return err
			}
			flush(w)
		}
	}
}

func (e *Emitter) write(w http.ResponseWriter, ev Event) error {
	if _, err := io.WriteString(w, Format(ev)); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	flush(w)
	e.metrics.IncStreamEvent(string(ev.Kind))
	return nil
}

// Format renders one event in SSE wire format. Multi-line data is split across data lines.
func Format(ev Event) string {
	var b strings.Builder
	if ev.Kind == KindError {
		b.WriteString("event: error\n")
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
