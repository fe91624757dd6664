// Package generate turns a profile into platform-specific text through a
// pluggable text-generation backend.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/profilestack/internal/profile"
)

// ErrGenerationFailed matches every backend failure.
var ErrGenerationFailed = errors.New("generation failed")

// Error is a backend failure. Its message is the provider's message
// verbatim.
type Error struct {
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGenerationFailed) hold for any *Error.
func (e *Error) Is(target error) bool { return target == ErrGenerationFailed }

// TextGenerator produces text for a prompt. Implementations return *Error
// on failure and never retry except on rate limiting.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Generator builds prompts from profiles and runs them on a backend.
type Generator struct {
	backend TextGenerator
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Generator on backend.
func New(backend TextGenerator) *Generator {
	return &Generator{
		backend: backend,
		timeout: 90 * time.Second,
		logger:  slog.Default(),
	}
}

// Model returns the backend model name.
func (g *Generator) Model() string { return g.backend.Model() }

// Generate renders content for platform from p.
func (g *Generator) Generate(ctx context.Context, p profile.Profile, platform Platform, req Request) (prompt, content string, err error) {
	if !platform.Valid() {
		return "", "", fmt.Errorf("unknown platform %q", platform)
	}
	prompt = BuildPrompt(p, platform, req)
	content, err = g.run(ctx, prompt)
	if err != nil {
		g.logger.Warn("generation failed", "platform", string(platform), "error", err)
		return prompt, "", err
	}
	g.logger.Debug("generated", "platform", string(platform), "chars", len(content))
	return prompt, content, nil
}

// ImproveBio rewrites bio in the given tone (professional, casual or
// creative; empty means professional).
func (g *Generator) ImproveBio(ctx context.Context, bio, tone string) (string, error) {
	if strings.TrimSpace(bio) == "" {
		return "", errors.New("bio is empty")
	}
	if tone != "" && !slices.Contains(Tones, tone) {
		return "", fmt.Errorf("unknown tone %q", tone)
	}
	out, err := g.run(ctx, bioPrompt(bio, tone))
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\"\n "), nil
}

// SuggestSkills asks for skills that fit p's experience and projects. Skills
// already on the profile are filtered out.
func (g *Generator) SuggestSkills(ctx context.Context, p profile.Profile) ([]string, error) {
	out, err := g.run(ctx, skillsPrompt(p))
	if err != nil {
		return nil, err
	}

	var suggested []string
	if err := json.Unmarshal([]byte(CleanJSON(out)), &suggested); err != nil {
		return nil, &Error{
			Provider: "parse",
			Message:  fmt.Sprintf("model returned no JSON skill list: %v", err),
			Err:      err,
		}
	}

	have := make(map[string]bool, len(p.Skills))
	for _, s := range p.Skills {
		have[strings.ToLower(strings.TrimSpace(s.Name))] = true
	}
	result := make([]string, 0, len(suggested))
	for _, s := range suggested {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || have[key] {
			continue
		}
		have[key] = true
		result = append(result, strings.TrimSpace(s))
	}
	return result, nil
}

func (g *Generator) run(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.backend.GenerateText(ctx, prompt)
	if err != nil {
		var ge *Error
		if errors.As(err, &ge) {
			return "", err
		}
		return "", &Error{Provider: "unknown", Message: err.Error(), Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return "", &Error{Provider: "unknown", Message: "model returned an empty response"}
	}
	return out, nil
}
