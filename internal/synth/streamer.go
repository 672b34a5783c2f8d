package synth

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/cache"
	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/metrics"
	"github.com/hyperifyio/goanswer/internal/tier"
)

// Streamer opens answer streams against a completion backend.
type Streamer struct {
	Client *llm.Client
	// Cache, when set, replays answers that previously reached the
	// terminator and stores new ones.
	Cache *cache.AnswerCache
}

// Stream sends prompt to the backend with the decoding parameters of t. A
// non-2xx reply is returned as *llm.SetupError and no stream is created.
func (s *Streamer) Stream(ctx context.Context, prompt string, t tier.Tier, apiKey string) (*AnswerStream, error) {
	if s.Client == nil {
		return nil, errors.New("streamer not configured")
	}
	if answer, ok := s.Cache.Load(ctx, t.Model, prompt); ok {
		log.Debug().Str("model", t.Model).Msg("answer cache hit")
		metrics.StreamsTotal.WithLabelValues(t.Model, "cached").Inc()
		return replayStream(ctx, answer), nil
	}

	req := llm.NewCompletionRequest(t.Model, prompt, t.MaxTokens, tier.StopMarker)
	started := time.Now()
	body, err := s.Client.Open(ctx, req, apiKey)
	if err != nil {
		metrics.StreamsTotal.WithLabelValues(t.Model, "setup_failed").Inc()
		return nil, err
	}

	metrics.ActiveStreams.Inc()
	stream := NewAnswerStream(ctx, body)
	first := true
	stream.onChunk = func(string) {
		if first {
			metrics.TimeToFirstChunk.WithLabelValues(t.Model).Observe(time.Since(started).Seconds())
			first = false
		}
		metrics.ChunksTotal.WithLabelValues(t.Model).Inc()
	}
	stream.onFinish = func(err error, text string) {
		metrics.ActiveStreams.Dec()
		if !errors.Is(err, io.EOF) {
			metrics.StreamsTotal.WithLabelValues(t.Model, "errored").Inc()
			log.Debug().Err(err).Str("model", t.Model).Msg("answer stream ended early")
			return
		}
		metrics.StreamsTotal.WithLabelValues(t.Model, "done").Inc()
		if s.Cache == nil {
			return
		}
		if err := s.Cache.Store(context.Background(), t.Model, prompt, text); err != nil {
			log.Warn().Err(err).Msg("store answer cache")
		}
	}
	return stream, nil
}
