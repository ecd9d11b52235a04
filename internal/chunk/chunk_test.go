package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFitsSingleMessage(t *testing.T) {
	fields := []Field{
		{Name: "New comment", Value: "short text", Inline: false},
		{Name: "Context", Value: "extra", Inline: true},
	}
	chunks := Split(fields, 1000)

	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 2)
	require.Equal(t, "New comment:", chunks[0][0].Name)
	require.Equal(t, "short text", chunks[0][0].Value)
	require.Equal(t, "Context", chunks[0][1].Name)
	require.True(t, chunks[0][1].Inline)
}

func TestSplitSingleFieldRoundTrip(t *testing.T) {
	value := strings.Repeat("x", 200)
	chunks := Split([]Field{{Name: "New comment", Value: value}}, 100)

	// capacity = 100 - len("New comment") - len(" (10/10):") = 80
	require.Len(t, chunks, 3)
	require.Equal(t, "New comment (1/3):", chunks[0][0].Name)
	require.Equal(t, "New comment (2/3):", chunks[1][0].Name)
	require.Equal(t, "New comment (3/3):", chunks[2][0].Name)

	var sb strings.Builder
	for _, c := range chunks {
		require.Len(t, c, 1)
		sb.WriteString(c[0].Value)
	}
	require.Equal(t, value, sb.String())

	for _, c := range chunks {
		require.LessOrEqual(t, len(c[0].Value), 80)
	}
}

func TestSplitHardCutoffDropsOverflow(t *testing.T) {
	value := strings.Repeat("y", 10_000)
	chunks := Split([]Field{{Name: "n", Value: value}}, 100)

	require.Len(t, chunks, MaxChunks)

	// capacity = 100 - 1 - 9 = 90; ten chunks keep exactly the first
	// 900 bytes and drop the rest.
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c[0].Value)
	}
	require.Equal(t, value[:900], sb.String())
	require.Equal(t, "n (10/10):", chunks[9][0].Name)
}

func TestSplitTwoFieldsSharesBudget(t *testing.T) {
	a := strings.Repeat("a", 100)
	b := strings.Repeat("b", 30)
	chunks := Split([]Field{
		{Name: "a", Value: a},
		{Name: "b", Value: b},
	}, 59)

	// budget = 59 - 1 - 1 - 9 = 48, half-budget 24 while both remain.
	require.Len(t, chunks, 4)

	require.Len(t, chunks[0], 2)
	require.Equal(t, 24, len(chunks[0][0].Value))
	require.Equal(t, 24, len(chunks[0][1].Value))

	require.Len(t, chunks[1], 2)
	require.Equal(t, 24, len(chunks[1][0].Value))
	require.Equal(t, 6, len(chunks[1][1].Value))

	// With the sibling exhausted the first field takes the full budget.
	require.Len(t, chunks[2], 1)
	require.Equal(t, 48, len(chunks[2][0].Value))

	require.Len(t, chunks[3], 1)
	require.Equal(t, 4, len(chunks[3][0].Value))

	var gotA, gotB strings.Builder
	for _, c := range chunks {
		for _, f := range c {
			if strings.HasPrefix(f.Name, "a") {
				gotA.WriteString(f.Value)
			} else {
				gotB.WriteString(f.Value)
			}
		}
	}
	require.Equal(t, a, gotA.String())
	require.Equal(t, b, gotB.String())

	require.Equal(t, "a (1/4):", chunks[0][0].Name)
	require.Equal(t, "b", chunks[0][1].Name)
}

func TestSplitExtraFieldsRideFirstChunk(t *testing.T) {
	chunks := Split([]Field{
		{Name: "a", Value: strings.Repeat("a", 300)},
		{Name: "b", Value: "bb"},
		{Name: "link", Value: "https://example.org"},
	}, 100)

	require.Greater(t, len(chunks), 1)
	last := chunks[0][len(chunks[0])-1]
	require.Equal(t, "link", last.Name)
	for _, c := range chunks[1:] {
		for _, f := range c {
			require.NotEqual(t, "link", f.Name)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	require.Nil(t, Split(nil, 100))
}

func TestRender(t *testing.T) {
	got := Render([]Field{
		{Name: "New comment (1/2):", Value: "hello"},
		{Name: "Previously", Value: "hi"},
	})
	require.Equal(t, "New comment (1/2): hello\nPreviously: hi", got)
}
