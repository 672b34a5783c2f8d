package synth

import (
	"bytes"
	"strings"
)

var bom = []byte("\xEF\xBB\xBF")

// Event is one dispatched server-sent event.
type Event struct {
	Type string
	ID   string
	Data string
}

// Parser turns arbitrary byte chunks of an event stream into events. It
// holds at most one partial line and one partial event between calls.
// Lines may end in LF, CR or CRLF; lines starting with ':' are comments;
// multiple data lines of one event are joined with '\n'.
type Parser struct {
	buf     []byte
	data    strings.Builder
	hasData bool
	typ     string
	id      string
	started bool
}

// Feed consumes chunk and returns the events completed by it, in order.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)
	if !p.started {
		if len(p.buf) < len(bom) && bytes.HasPrefix(bom, p.buf) {
			return nil
		}
		p.buf = bytes.TrimPrefix(p.buf, bom)
		p.started = true
	}
	var out []Event
	for {
		i := bytes.IndexAny(p.buf, "\r\n")
		if i < 0 {
			return out
		}
		next := i + 1
		if p.buf[i] == '\r' {
			if next == len(p.buf) {
				// CR at the end may be the first half of CRLF.
				return out
			}
			if p.buf[next] == '\n' {
				next++
			}
		}
		line := string(p.buf[:i])
		p.buf = p.buf[next:]
		if ev, ok := p.line(line); ok {
			out = append(out, ev)
		}
	}
}

// Flush ends the input: a pending partial line is processed and a pending
// event is dispatched even without its closing blank line.
func (p *Parser) Flush() []Event {
	var out []Event
	if len(p.buf) > 0 {
		line := strings.TrimRight(string(p.buf), "\r")
		p.buf = nil
		if ev, ok := p.line(line); ok {
			out = append(out, ev)
		}
	}
	if ev, ok := p.dispatch(); ok {
		out = append(out, ev)
	}
	return out
}

func (p *Parser) line(line string) (Event, bool) {
	if line == "" {
		return p.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}
	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}
	switch field {
	case "data":
		if p.hasData {
			p.data.WriteByte('\n')
		}
		p.data.WriteString(value)
		p.hasData = true
	case "event":
		p.typ = value
	case "id":
		if !strings.ContainsRune(value, 0) {
			p.id = value
		}
	}
	return Event{}, false
}

func (p *Parser) dispatch() (Event, bool) {
	if !p.hasData {
		p.typ = ""
		return Event{}, false
	}
	ev := Event{Type: p.typ, ID: p.id, Data: p.data.String()}
	p.data.Reset()
	p.hasData = false
	p.typ = ""
	return ev, true
}
