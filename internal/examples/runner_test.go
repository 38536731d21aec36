package examples

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSuite(sections ...Section) *Suite {
	return &Suite{
		Name:        "test",
		Title:       "=== Test ===",
		Separator:   10,
		ErrorLabel:  "Error running examples",
		InstallHint: "go get github.com/tmc/langchaingo",
		Sections:    sections,
	}
}

func printSection(key, text string) Section {
	return Section{Key: key, Title: key + ":", Run: func(_ context.Context, out io.Writer) error {
		_, err := io.WriteString(out, text+"\n")
		return err
	}}
}

func TestRunner_MissingAPIKey(t *testing.T) {
	var out bytes.Buffer
	called := false
	suite := testSuite(Section{Key: "a", Title: "a", Run: func(context.Context, io.Writer) error {
		called = true
		return nil
	}})

	err := NewRunner(&out, "", "").Run(context.Background(), suite)
	require.NoError(t, err)
	assert.False(t, called)

	want := "=== Test ===\n\n" +
		"Warning: OPENAI_API_KEY not set. These examples require an OpenAI API key.\n" +
		"Set it with: export OPENAI_API_KEY='your-api-key-here'\n"
	assert.Equal(t, want, out.String())
}

func TestRunner_SectionsAndSeparators(t *testing.T) {
	var out bytes.Buffer
	suite := testSuite(printSection("one", "first"), printSection("two", "second"), printSection("three", "third"))

	require.NoError(t, NewRunner(&out, "key", "").Run(context.Background(), suite))

	sep := strings.Repeat("=", 10)
	want := "=== Test ===\n\n" +
		"one:\nfirst\n" +
		"\n" + sep + "\n\n" +
		"two:\nsecond\n" +
		"\n" + sep + "\n\n" +
		"three:\nthird\n"
	assert.Equal(t, want, out.String())
}

func TestRunner_ErrorCaptured(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	suite := testSuite(
		Section{Key: "fail", Title: "fail:", Run: func(context.Context, io.Writer) error { return boom }},
		Section{Key: "after", Title: "after:", Run: func(context.Context, io.Writer) error {
			ran = true
			return nil
		}},
	)

	var out bytes.Buffer
	require.NoError(t, NewRunner(&out, "key", "").Run(context.Background(), suite))
	assert.False(t, ran, "sections after a failure must not run")
	assert.Contains(t, out.String(), "Error running examples: boom\n"+
		"Make sure you have installed the required packages:\n"+
		"go get github.com/tmc/langchaingo\n")

	out.Reset()
	err := NewRunner(&out, "key", "", WithStrict(true)).Run(context.Background(), suite)
	assert.ErrorIs(t, err, boom)
}

func TestRunner_PanicRecovered(t *testing.T) {
	suite := testSuite(Section{Key: "panic", Title: "panic:", Run: func(context.Context, io.Writer) error {
		panic("kaboom")
	}})

	var out bytes.Buffer
	err := NewRunner(&out, "key", "", WithStrict(true)).Run(context.Background(), suite)
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, out.String(), "Error running examples: panic while running examples: kaboom")
}

func TestRunner_Only(t *testing.T) {
	suite := testSuite(printSection("one", "first"), printSection("two", "second"), printSection("three", "third"))

	var out bytes.Buffer
	require.NoError(t, NewRunner(&out, "key", "", WithOnly("three", "one")).Run(context.Background(), suite))
	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "third")
	assert.NotContains(t, out.String(), "second")
	assert.Less(t, strings.Index(out.String(), "first"), strings.Index(out.String(), "third"))

	out.Reset()
	err := NewRunner(&out, "key", "", WithOnly("four")).Run(context.Background(), suite)
	assert.ErrorIs(t, err, ErrUnknownSection)
	assert.Empty(t, out.String())
}

func TestRunner_CanceledContext(t *testing.T) {
	suite := testSuite(printSection("one", "first"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := NewRunner(&out, "key", "", WithStrict(true)).Run(ctx, suite)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, out.String(), "first")
}

func TestRunner_CustomEnvName(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewRunner(&out, "", "MY_KEY").Run(context.Background(), testSuite()))
	assert.Contains(t, out.String(), "Warning: MY_KEY not set.")
	assert.Contains(t, out.String(), "export MY_KEY='your-api-key-here'")
}

func TestRunner_Metrics(t *testing.T) {
	metrics := observability.NewMetrics("")
	suite := testSuite(printSection("one", "first"))

	var out bytes.Buffer
	require.NoError(t, NewRunner(&out, "key", "", WithRunnerMetrics(metrics)).Run(context.Background(), suite))

	count, err := testutil.GatherAndCount(metrics.Registry(), "goleapchain_example_sections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
