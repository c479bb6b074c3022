package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/mood-o-meter/internal/errors"
)

type recordingGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func (g *recordingGenerator) Name() string { return "fake" }

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]string{"I feel great today", "Loving life"})

	assert.True(t, strings.HasPrefix(prompt, promptHeader))
	assert.Contains(t, prompt, "I feel great today\n\nLoving life")
	assert.Contains(t, prompt, `"The user is likely depressed"`)
	assert.Contains(t, prompt, `"The user is not likely depressed."`)
}

func TestBuildPrompt_PreservesOrderAndContent(t *testing.T) {
	tweets := []string{"third? no, first", "multi\nline", "émojis 🚀 ok"}
	prompt := BuildPrompt(tweets)

	assert.Contains(t, prompt, strings.Join(tweets, TweetSeparator))
	assert.Less(t, strings.Index(prompt, tweets[0]), strings.Index(prompt, tweets[2]))
}

func TestAnalyze_ReturnsModelTextVerbatim(t *testing.T) {
	tests := []string{
		"The user is not likely depressed.",
		"  Hard to say.\nProbably fine.  ",
		"",
	}

	for _, reply := range tests {
		t.Run(fmt.Sprintf("%q", reply), func(t *testing.T) {
			gen := &recordingGenerator{reply: reply}
			analyzer := NewAnalyzer(gen)

			out, err := analyzer.Analyze(context.Background(), []string{"I feel great today", "Loving life"})
			require.NoError(t, err)
			assert.Equal(t, reply, out)
			require.Len(t, gen.prompts, 1, "exactly one model call")
			assert.Contains(t, gen.prompts[0], "I feel great today\n\nLoving life")
		})
	}
}

func TestAnalyze_FailureIsNotRetried(t *testing.T) {
	gen := &recordingGenerator{err: fmt.Errorf("quota exceeded")}
	analyzer := NewAnalyzer(gen)

	out, err := analyzer.Analyze(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Len(t, gen.prompts, 1)

	appErr := errors.ToAppError(err)
	assert.Equal(t, errors.CategoryAnalysis, appErr.Category)
	assert.Equal(t, errors.MsgAnalysisFailed, appErr.Message())
}

func TestAnalyze_EmptyInput(t *testing.T) {
	gen := &recordingGenerator{reply: "unused"}
	analyzer := NewAnalyzer(gen)

	_, err := analyzer.Analyze(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, gen.prompts)
}
