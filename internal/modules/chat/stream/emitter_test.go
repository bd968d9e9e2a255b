package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: KindText, Data: "Hello"}, "data: Hello\n\n"},
		{Event{Kind: KindText, Data: "a\nb"}, "data: a\ndata: b\n\n"},
		{Event{Kind: KindTool, Data: "TOOL_MSG:[]"}, "data: TOOL_MSG:[]\n\n"},
		{Event{Kind: KindError, Data: `{"code":"x","message":"y"}`}, "event: error\ndata: {\"code\":\"x\",\"message\":\"y\"}\n\n"},
	}
	for _, tc := range cases {
		if got := Format(tc.ev); got != tc.want {
			t.Fatalf("Format(%+v): want=%q got=%q", tc.ev, tc.want, got)
		}
	}
}

func TestServeWritesEventsInOrder(t *testing.T) {
	e := New(logger.Nop(), nil, Options{})
	rec := httptest.NewRecorder()

	go func() {
		_ = e.Text("Hel")
		_ = e.Text("")
		_ = e.Text("lo")
		_ = e.ToolResult(json.RawMessage(`[{"content":"c","source":"a.pdf","page":1,"document_id":"d"}]`))
		e.Close()
	}()
	if err := e.Serve(t.Context(), rec); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	want := "data: Hel\n\ndata: lo\n\ndata: TOOL_MSG:[{\"content\":\"c\",\"source\":\"a.pdf\",\"page\":1,\"document_id\":\"d\"}]\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body: want=%q got=%q", want, got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got=%q", ct)
	}
	if !rec.Flushed {
		t.Fatalf("expected flush")
	}
}

func TestFailCarriesErrorCode(t *testing.T) {
	e := New(logger.Nop(), nil, Options{})
	rec := httptest.NewRecorder()
	_ = e.Fail(fmt.Errorf("search: %w", pkgerrors.ErrRetrievalFailure))
	e.Close()
	if err := e.Serve(t.Context(), rec); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: error\ndata: ") {
		t.Fatalf("body: got=%q", body)
	}
	var p ErrorPayload
	data := strings.TrimSuffix(strings.TrimPrefix(body, "event: error\ndata: "), "\n\n")
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Code != "retrieval_failure" {
		t.Fatalf("code: want=retrieval_failure got=%q", p.Code)
	}
}

func TestFailHidesInternalDetail(t *testing.T) {
	cases := []struct {
		err  error
		code string
		msg  string
	}{
		{errors.New("pq: password authentication failed for user rag"), "internal", "Internal Server Error"},
		{fmt.Errorf("qdrant search: dial tcp 10.0.0.7:6334: %w", pkgerrors.ErrRetrievalFailure), "retrieval_failure", "retrieval failure"},
		{fmt.Errorf("openai 401 sk-live: %w", pkgerrors.ErrUpstreamModel), "upstream_model_error", "upstream model error"},
		{fmt.Errorf("turn: %w", context.DeadlineExceeded), "timeout", "context deadline exceeded"},
		{fmt.Errorf("content required: %w", pkgerrors.ErrInvalidArgument), "invalid_argument", "content required: invalid argument"},
	}
	for _, tc := range cases {
		e := New(logger.Nop(), nil, Options{})
		rec := httptest.NewRecorder()
		_ = e.Fail(tc.err)
		e.Close()
		if err := e.Serve(t.Context(), rec); err != nil {
			t.Fatalf("Serve: %v", err)
		}
		var p ErrorPayload
		data := strings.TrimSuffix(strings.TrimPrefix(rec.Body.String(), "event: error\ndata: "), "\n\n")
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			t.Fatalf("payload %q: %v", data, err)
		}
		if p.Code != tc.code || p.Message != tc.msg {
			t.Fatalf("Fail(%v): want=%s/%q got=%s/%q", tc.err, tc.code, tc.msg, p.Code, p.Message)
		}
	}
}

func TestSendAfterCloseIsRejected(t *testing.T) {
	e := New(logger.Nop(), nil, Options{})
	e.Close()
	e.Close()
	if err := e.Text("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed got=%v", err)
	}
}

func TestProducerUnblockedWhenConsumerLeaves(t *testing.T) {
	e := New(logger.Nop(), nil, Options{Buffer: 1})
	ctx, cancel := context.WithCancel(t.Context())

	served := make(chan error, 1)
	go func() { served <- e.Serve(ctx, httptest.NewRecorder()) }()
	cancel()
	if err := <-served; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve: want canceled got=%v", err)
	}

	sent := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i < 5 && err == nil; i++ {
			err = e.Text("x")
		}
		sent <- err
	}()
	select {
	case err := <-sent:
		if !errors.Is(err, ErrConsumerGone) {
			t.Fatalf("want ErrConsumerGone got=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("producer stayed blocked")
	}
}

func TestHeartbeat(t *testing.T) {
	e := New(logger.Nop(), nil, Options{Heartbeat: 5 * time.Millisecond})
	rec := httptest.NewRecorder()
	go func() {
		time.Sleep(30 * time.Millisecond)
		e.Close()
	}()
	if err := e.Serve(t.Context(), rec); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !strings.Contains(rec.Body.String(), ": ping\n\n") {
		t.Fatalf("expected heartbeat comment, got=%q", rec.Body.String())
	}
}
