package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/mood-o-meter/internal/llm"
)

// The two phrasings the model is asked to answer with. The response is not
// checked against them.
const (
	VerdictLikely    = "The user is likely depressed"
	VerdictNotLikely = "The user is not likely depressed."
)

const promptHeader = "The following are tweets from a Twitter user. Analyze the tweets and predict if the user might be depressed or not based on the tone, language, and sentiment:"

// TweetSeparator joins posts inside the prompt
const TweetSeparator = "\n\n"

// BuildPrompt places every tweet, separated by a blank line, between the
// instruction and the answer format.
func BuildPrompt(tweets []string) string {
	var b strings.Builder

	b.WriteString(promptHeader)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(tweets, TweetSeparator))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Provide a clear response: %q or %q", VerdictLikely, VerdictNotLikely)

	return b.String()
}

// Analyzer classifies a batch of tweets with a text model
type Analyzer struct {
	generator llm.Generator
}

// NewAnalyzer creates an analyzer backed by generator
func NewAnalyzer(generator llm.Generator) *Analyzer {
	return &Analyzer{generator: generator}
}

// Provider names the model backend
func (a *Analyzer) Provider() string {
	return a.generator.Name()
}

// Analyze makes exactly one model call and returns its text verbatim. Every
// failure becomes an analysis error; nothing is retried.
func (a *Analyzer) Analyze(ctx context.Context, tweets []string) (string, error) {
	if len(tweets) == 0 {
		return "", errors.NewAnalysisError(a.Provider(), fmt.Errorf("no tweets to analyze"))
	}

	prompt := BuildPrompt(tweets)

	start := time.Now()
	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		slog.Error("Model call failed",
			"provider", a.Provider(),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return "", errors.NewAnalysisError(a.Provider(), err)
	}

	slog.Debug("Model call completed",
		"provider", a.Provider(),
		"tweets", len(tweets),
		"prompt_length", len(prompt),
		"duration_ms", time.Since(start).Milliseconds())

	return text, nil
}
