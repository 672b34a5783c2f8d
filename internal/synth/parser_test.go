package synth

import (
	"testing"
)

func feedAll(p *Parser, chunks ...string) []Event {
	var out []Event
	for _, c := range chunks {
		out = append(out, p.Feed([]byte(c))...)
	}
	return out
}

func TestParser_SplitAcrossChunks(t *testing.T) {
	var p Parser
	evs := feedAll(&p, "da", "ta: {\"a\"", ":1}\n", "\ndata: [DO", "NE]\n\n")
	if len(evs) != 2 || evs[0].Data != `{"a":1}` || evs[1].Data != "[DONE]" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestParser_LineEndingsAndComments(t *testing.T) {
	var p Parser
	evs := feedAll(&p, ": keep-alive\r\n\r\ndata:x\r", "\n\r\ndata: y\rdata: z\r\r\n")
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %+v", evs)
	}
	if evs[0].Data != "x" || evs[1].Data != "y\nz" {
		t.Fatalf("unexpected data %+v", evs)
	}
}

func TestParser_EventFieldsAndBOM(t *testing.T) {
	var p Parser
	evs := feedAll(&p, "\xEF\xBB", "\xBFevent: completion\nid: 7\nretry: 10\ndata: hi\n\n")
	if len(evs) != 1 || evs[0].Type != "completion" || evs[0].ID != "7" || evs[0].Data != "hi" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestParser_BlankLinesWithoutDataDispatchNothing(t *testing.T) {
	var p Parser
	if evs := feedAll(&p, "\n\n\nevent: x\n\n"); len(evs) != 0 {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestParser_FlushDispatchesPending(t *testing.T) {
	var p Parser
	if evs := feedAll(&p, "data: [DONE]"); len(evs) != 0 {
		t.Fatalf("event dispatched too early: %+v", evs)
	}
	evs := p.Flush()
	if len(evs) != 1 || evs[0].Data != "[DONE]" {
		t.Fatalf("unexpected flush %+v", evs)
	}
	if evs := p.Flush(); len(evs) != 0 {
		t.Fatalf("second flush should be empty, got %+v", evs)
	}
}
