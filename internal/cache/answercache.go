package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AnswerCache keeps completed answers keyed by model and prompt. With
// temperature 0 the backend is expected to return the same text for the
// same prompt, so a hit can be replayed instead of streamed again.
type AnswerCache struct {
	Dir         string
	StrictPerms bool
}

type answerEntry struct {
	Model   string    `json:"model"`
	Answer  string    `json:"answer"`
	SavedAt time.Time `json:"saved_at"`
}

func (c *AnswerCache) pathFor(model, prompt string) string {
	return filepath.Join(c.Dir, keyOf(model, prompt)+".json")
}

// Load returns the cached answer for model and prompt, if any.
func (c *AnswerCache) Load(_ context.Context, model, prompt string) (string, bool) {
	if c == nil || c.Dir == "" {
		return "", false
	}
	p := c.pathFor(model, prompt)
	b, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	var e answerEntry
	if err := json.Unmarshal(b, &e); err != nil || strings.TrimSpace(e.Answer) == "" {
		return "", false
	}
	// touch for age-based purging
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return e.Answer, true
}

// Store saves a completed answer.
func (c *AnswerCache) Store(_ context.Context, model, prompt, answer string) error {
	if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
		return err
	}
	b, err := json.Marshal(answerEntry{Model: model, Answer: answer, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return writeAtomic(c.pathFor(model, prompt), b, fileMode(c.StrictPerms))
}
