// Package llmtest provides deterministic llm.Generator fakes for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Skufu/GoSymptom/internal/llm"
)

// Rule answers prompts containing Match.
type Rule struct {
	Match string
	Reply string
	Err   error
}

// Fake is a scripted llm.Generator. The first rule whose Match is contained in the
// prompt wins; unmatched prompts get Default/DefaultErr.
type Fake struct {
	Rules      []Rule
	Default    string
	DefaultErr error

	ImageReply string
	ImageErr   error

	mu      sync.Mutex
	prompts []string
}

var _ llm.Generator = (*Fake)(nil)

// ErrUnscripted is returned for prompts no rule matches when Default is empty.
var ErrUnscripted = errors.New("llmtest: unscripted prompt")

// GenerateText implements llm.Generator.
func (f *Fake) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.record(prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, r := range f.Rules {
		if strings.Contains(prompt, r.Match) {
			return r.Reply, r.Err
		}
	}
	if f.DefaultErr != nil {
		return "", f.DefaultErr
	}
	if f.Default == "" {
		return "", ErrUnscripted
	}
	return f.Default, nil
}

// DescribeImage implements llm.Generator.
func (f *Fake) DescribeImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	f.record(prompt)
	if f.ImageErr != nil {
		return "", f.ImageErr
	}
	return f.ImageReply, nil
}

// Prompts returns every prompt seen so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

// Count returns how many prompts contained substr.
func (f *Fake) Count(substr string) int {
	n := 0
	for _, p := range f.Prompts() {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

func (f *Fake) record(prompt string) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
}
