package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// DoneToken is the data payload that ends a completion stream.
const DoneToken = "[DONE]"

var (
	// ErrStreamDecode marks an event whose payload is not a completion chunk.
	ErrStreamDecode = errors.New("stream decode failed")
	// ErrStreamClosed is returned by Recv after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// AnswerStream is a pull-based sequence of answer chunks. Recv returns the
// next chunk, io.EOF once the backend sent the terminator, or another error
// when the stream failed. Terminal results are sticky. Chunks already
// returned before a failure stay valid. An AnswerStream is not safe for
// concurrent Recv calls; Close may be called from any goroutine.
type AnswerStream struct {
	ctx     context.Context
	body    io.ReadCloser
	parser  Parser
	events  []Event
	queued  []string
	eof     bool
	readBuf []byte

	text strings.Builder
	err  error

	// onFinish runs once with the terminal error and the full text.
	onFinish func(err error, text string)
	// onChunk runs for each delivered chunk.
	onChunk func(chunk string)

	closeOnce sync.Once
	closeMu   sync.Mutex
	closed    bool
}

// NewAnswerStream decodes the event stream read from body. Cancelling ctx
// stops delivery; the body should come from a request bound to the same
// context so a blocked read is interrupted too.
func NewAnswerStream(ctx context.Context, body io.ReadCloser) *AnswerStream {
	return &AnswerStream{ctx: ctx, body: body, readBuf: make([]byte, 4096)}
}

// replayStream delivers a stored answer as a single chunk followed by io.EOF.
func replayStream(ctx context.Context, answer string) *AnswerStream {
	s := &AnswerStream{ctx: ctx, eof: true}
	if answer != "" {
		s.queued = []string{answer}
	}
	return s
}

// Recv returns the next chunk.
func (s *AnswerStream) Recv() (string, error) {
	for {
		if s.err != nil {
			return "", s.err
		}
		if s.isClosed() {
			return "", s.finish(ErrStreamClosed)
		}
		if err := s.ctx.Err(); err != nil {
			return "", s.finish(err)
		}
		if len(s.queued) > 0 {
			chunk := s.queued[0]
			s.queued = s.queued[1:]
			return s.deliver(chunk), nil
		}
		if len(s.events) > 0 {
			ev := s.events[0]
			s.events = s.events[1:]
			if strings.TrimSpace(ev.Data) == DoneToken {
				return "", s.finish(io.EOF)
			}
			chunk, err := decodeChunk(ev.Data)
			if err != nil {
				return "", s.finish(err)
			}
			if chunk == "" {
				continue
			}
			return s.deliver(chunk), nil
		}
		if s.eof || s.body == nil {
			if s.body == nil {
				return "", s.finish(io.EOF)
			}
			return "", s.finish(fmt.Errorf("%w: stream ended without %s", io.ErrUnexpectedEOF, DoneToken))
		}
		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.events = append(s.events, s.parser.Feed(s.readBuf[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				s.events = append(s.events, s.parser.Flush()...)
				continue
			}
			if cerr := s.ctx.Err(); cerr != nil {
				return "", s.finish(cerr)
			}
			if s.isClosed() {
				return "", s.finish(ErrStreamClosed)
			}
			return "", s.finish(fmt.Errorf("read completion stream: %w", err))
		}
	}
}

// Text returns the concatenation of every chunk delivered so far.
func (s *AnswerStream) Text() string { return s.text.String() }

// Close releases the underlying connection. Later Recv calls return
// ErrStreamClosed unless the stream had already terminated.
func (s *AnswerStream) Close() error {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()
	return s.closeBody()
}

func (s *AnswerStream) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *AnswerStream) closeBody() error {
	var err error
	s.closeOnce.Do(func() {
		if s.body != nil {
			err = s.body.Close()
		}
	})
	return err
}

func (s *AnswerStream) deliver(chunk string) string {
	s.text.WriteString(chunk)
	if s.onChunk != nil {
		s.onChunk(chunk)
	}
	return chunk
}

func (s *AnswerStream) finish(err error) error {
	s.err = err
	s.events = nil
	s.queued = nil
	_ = s.closeBody()
	if s.onFinish != nil {
		s.onFinish(err, s.text.String())
		s.onFinish = nil
	}
	return err
}

func decodeChunk(data string) (string, error) {
	var resp openai.CompletionResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStreamDecode, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: event has no choices", ErrStreamDecode)
	}
	return resp.Choices[0].Text, nil
}

// Collect drains s and returns the full answer. A nil error means the
// stream reached the terminator.
func Collect(s *AnswerStream) (string, error) {
	for {
		if _, err := s.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return s.Text(), nil
			}
			return s.Text(), err
		}
	}
}
