package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralsBuilder(t *testing.T) {
	var got string
	handler := func(name string) LiteralHandler {
		return func(context.Context, string) error {
			got = name
			return nil
		}
	}

	_, err := NewLiterals().Register("hi", handler("hi")).Build()
	assert.ErrorIs(t, err, ErrNoWildcard)

	l, err := NewLiterals().
		Register("hi", handler("first")).
		Register(Wildcard, handler("wildcard")).
		Register("hi", handler("second")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", Wildcard}, l.Triggers())

	h, ok := l.Lookup("hi")
	require.True(t, ok)
	require.NoError(t, h(context.Background(), "room"))
	assert.Equal(t, "second", got)

	_, ok = l.Lookup("HI")
	assert.False(t, ok)
}

func TestLiteralsBuilderSkipsNilHandlers(t *testing.T) {
	l, err := NewLiterals().
		Register("hi", nil).
		Register("bye", func(context.Context, string) error { return nil }).
		Register(Wildcard, func(context.Context, string) error { return nil }).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"bye", Wildcard}, l.Triggers())
	_, ok := l.Lookup("hi")
	assert.False(t, ok)
	for _, trigger := range l.Triggers() {
		_, ok := l.Lookup(trigger)
		assert.True(t, ok, trigger)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, bot, want string
	}{
		{"@mybot /tenki", "mybot", "/tenki"},
		{"  @mybot   hello  ", "mybot", "hello"},
		{"@mybot @mybot x", "mybot", "@mybot x"},
		{"hello @mybot x", "mybot", "hello @mybot x"},
		{"@mybot /tenki", "", "@mybot /tenki"},
		{"@mybotty x", "mybot", "@mybotty x"},
		{"\t\n", "mybot", ""},
	}
	for _, tt := range tests {
		if got := normalizeText(tt.in, tt.bot); got != tt.want {
			t.Errorf("normalizeText(%q, %q) = %q, want %q", tt.in, tt.bot, got, tt.want)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	cmd, args := splitCommand("/unknown arg1")
	assert.Equal(t, "/unknown", cmd)
	assert.Equal(t, []string{"arg1"}, args)

	cmd, args = splitCommand("/ping")
	assert.Equal(t, "/ping", cmd)
	assert.Empty(t, args)
}
