package conversation

// Log is an append-only, copy-on-write sequence of messages. The zero value is empty.
type Log struct {
	msgs []Message
}

func NewLog(msgs ...Message) Log {
	return Log{}.Append(msgs...)
}

func (l Log) Len() int { return len(l.msgs) }

// Messages returns a copy of the messages in order.
func (l Log) Messages() []Message {
	out := make([]Message, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.Clone()
	}
	return out
}

func (l Log) At(i int) Message { return l.msgs[i].Clone() }

func (l Log) Last() (Message, bool) {
	if len(l.msgs) == 0 {
		return Message{}, false
	}
	return l.msgs[len(l.msgs)-1].Clone(), true
}

// Append returns a new log; l is unchanged and shares no backing array with the result.
func (l Log) Append(msgs ...Message) Log {
	out := make([]Message, 0, len(l.msgs)+len(msgs))
	out = append(out, l.msgs...)
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	return Log{msgs: out}
}

// Since returns the messages appended after the first n.
func (l Log) Since(n int) []Message {
	if n >= len(l.msgs) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := make([]Message, 0, len(l.msgs)-n)
	for _, m := range l.msgs[n:] {
		out = append(out, m.Clone())
	}
	return out
}
