package main

import "testing"

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ingest", "ask", "history"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Fatalf("find %s: want command got=%v err=%v", name, cmd, err)
		}
	}
}

func TestIngestRequiresUserAndFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ingest"})
	root.SetOut(new(discard))
	root.SetErr(new(discard))
	if err := root.Execute(); err == nil {
		t.Fatalf("ingest without args: want error")
	}
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
