package probe

import (
	"strings"
)

// IsQuery returns true for status queries and configuration reads. They
// are answered by the controller but are not part of a sequence.
func IsQuery(line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "?", "$", "$$", "$#", "$G", "$I", "$N":
		return true
	}
	return strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">")
}

// tracker counts the lines of one sequence as they are sent and acknowledged.
//
// 0 <= acked <= sent <= total always holds.
type tracker struct {
	tag   string
	total int
	sent  []string
	acked int
}

func newTracker(tag string, total int) *tracker {
	return &tracker{tag: tag, total: total}
}

// lineSent records an outbound line. It returns true if the line was counted.
func (t *tracker) lineSent(line, source string) bool {
	if source != t.tag || IsQuery(line) || len(t.sent) >= t.total {
		return false
	}
	t.sent = append(t.sent, strings.TrimSpace(line))
	return true
}

// ack credits the oldest unacknowledged line. It returns false if every
// sent line was already acknowledged.
func (t *tracker) ack() bool {
	if t.acked >= len(t.sent) {
		return false
	}
	t.acked++
	return true
}

func (t *tracker) Total() int { return t.total }
func (t *tracker) Sent() int  { return len(t.sent) }
func (t *tracker) Acked() int { return t.acked }

// pending returns the oldest sent line that has not been acknowledged.
func (t *tracker) pending() string {
	if t.acked < len(t.sent) {
		return t.sent[t.acked]
	}
	return ""
}

// ratios returns sent/total and acked/total.
func (t *tracker) ratios() (sent, acked float64) {
	if t.total == 0 {
		return 1, 1
	}
	return float64(len(t.sent)) / float64(t.total), float64(t.acked) / float64(t.total)
}

// wireQueue mirrors the controller's line buffer. Every line written is
// answered by exactly one ok or error, in order, whoever sent it. Realtime
// bytes are never answered.
type wireQueue struct {
	q []bool
}

// sent queues an outbound line, flagged if it belongs to the tracked sequence.
func (w *wireQueue) sent(line string, counted bool) {
	if isRealtime(line) {
		return
	}
	w.q = append(w.q, counted)
}

// answered pops the oldest outstanding line and reports whether it was counted.
func (w *wireQueue) answered() bool {
	if len(w.q) == 0 {
		return false
	}
	counted := w.q[0]
	w.q = w.q[1:]
	return counted
}

func isRealtime(line string) bool {
	if len(line) == 0 {
		return false
	}
	if line[0] >= 0x80 {
		return true
	}
	switch strings.TrimRight(line, "\r\n") {
	case "?", "!", "~", "\x18":
		return true
	}
	return false
}
