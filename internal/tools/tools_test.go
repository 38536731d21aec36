package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/callbacks"
)

func TestFunctions(t *testing.T) {
	assert.Equal(t, "olleh", ReverseWord("hello"))
	assert.Equal(t, "", ReverseWord(""))
	assert.Equal(t, "àèì", ReverseWord("ìèà"))
	assert.Equal(t, 15.0, CalculateArea(5, 3))
	assert.Equal(t, 9, GetWordLength("LangChain"))
	assert.Equal(t, 3, GetWordLength("età"))
	assert.Equal(t, "HELLO WORLD", ToUpper("hello world"))
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		input   string
		length  float64
		width   float64
		wantErr bool
	}{
		{"5,3", 5, 3, false},
		{" 10 , 7 ", 10, 7, false},
		{"'2.5,4'", 2.5, 4, false},
		{"5", 0, 0, true},
		{"5,3,1", 0, 0, true},
		{"a,3", 0, 0, true},
		{"5,b", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l, w, err := ParseDimensions(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.length, l)
			assert.Equal(t, tt.width, w)
		})
	}
}

func TestTools_Call(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		tool  *Func
		input string
		want  string
	}{
		{NameWordLength, WordLength(), "LangChain", "9"},
		{NameWordLength, WordLength(), `"LangChain"`, "9"},
		{NameReverseWord, Reverse(), "hello", "olleh"},
		{NameCalculateArea, Area(), "10,7", "70"},
		{NameCalculateArea, Area(), "2.5, 4", "10"},
		{NameUpperCase, UpperCase(), "hello world", "HELLO WORLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.tool.Name())
			got, err := tt.tool.Call(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArea_InvalidInput(t *testing.T) {
	_, err := Area().Call(context.Background(), "ten by seven")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDescriptions(t *testing.T) {
	assert.Equal(t, "Get the length of a word", WordLength().Description())
	assert.Equal(t, "Reverse a word", Reverse().Description())
	assert.Equal(t, "Calculate rectangle area. Input should be 'length,width'", Area().Description())
	assert.Equal(t, "Convert text to uppercase", UpperCase().Description())
	assert.Equal(t, "Perform basic math calculations. Input should be a math expression.", Calculator(nil).Description())
}

func TestCalculator_Sandboxed(t *testing.T) {
	calc := Calculator(nil)
	ctx := context.Background()

	got, err := calc.Call(ctx, "25 * 4 + 10")
	require.NoError(t, err)
	assert.Equal(t, "110", got)

	// Nessun accesso a I/O o import: l'errore torna come osservazione
	got, err = calc.Call(ctx, `__import__("os").system("ls")`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "error from evaluator"), got)
}

type recordingHandler struct {
	callbacks.SimpleHandler
	events []string
}

func (h *recordingHandler) HandleToolStart(_ context.Context, input string) {
	h.events = append(h.events, "start:"+input)
}

func (h *recordingHandler) HandleToolEnd(_ context.Context, output string) {
	h.events = append(h.events, "end:"+output)
}

func (h *recordingHandler) HandleToolError(_ context.Context, err error) {
	h.events = append(h.events, "error")
}

func TestFunc_Callbacks(t *testing.T) {
	handler := &recordingHandler{}
	set := Offline(handler)

	rev, err := Lookup(set, "reverseword")
	require.NoError(t, err)
	_, err = rev.Call(context.Background(), "abc")
	require.NoError(t, err)

	area, err := Lookup(set, NameCalculateArea)
	require.NoError(t, err)
	_, err = area.Call(context.Background(), "bad")
	require.Error(t, err)

	assert.Equal(t, []string{"start:abc", "end:cba", "start:bad", "error"}, handler.events)
}

func TestFunc_PropagatesError(t *testing.T) {
	sentinel := errors.New("boom")
	tool := NewFunc("Broken", "always fails", func(context.Context, string) (string, error) {
		return "", sentinel
	})

	_, err := tool.Call(context.Background(), "x")
	assert.ErrorIs(t, err, sentinel)
}

func TestOfflineNamesAndLookup(t *testing.T) {
	set := Offline(nil)

	assert.Equal(t, []string{NameCalculateArea, NameCalculator, NameReverseWord, NameUpperCase, NameWordLength}, Names(set))

	_, err := Lookup(set, "Missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
}
