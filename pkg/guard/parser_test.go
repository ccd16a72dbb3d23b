package guard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunHsiao/crysknife/pkg/errors"
	"github.com/YunHsiao/crysknife/pkg/guard"
)

const tag = "Crysknife"

func parse(t *testing.T, text string) []guard.Segment {
	t.Helper()
	lines, _ := guard.SplitLines(text)
	segments, err := guard.NewParser(tag).Parse(lines)
	require.NoError(t, err)
	return segments
}

func TestParser_Forms(t *testing.T) {
	t.Run("block_addition", func(t *testing.T) {
		segments := parse(t, `#include "Engine.h"

// Crysknife custom hook: Begin
void Injected() {
	DoMore();
}
// Crysknife: End
int Tail = 1;
`)
		require.Len(t, segments, 1)
		seg := segments[0]
		assert.Equal(t, guard.Addition, seg.Kind)
		assert.Equal(t, guard.Block, seg.Style)
		assert.Equal(t, 2, seg.Start)
		assert.Equal(t, 6, seg.End)
		assert.Equal(t, " custom hook", seg.Comment)
		assert.Equal(t, []string{"void Injected() {", "\tDoMore();", "}"}, seg.Body)
		assert.Empty(t, seg.Stock)
	})

	t.Run("block_deletion_recovers_stock", func(t *testing.T) {
		segments := parse(t, `head
	// Crysknife-: Begin
	// OldCode();
	// MoreOld();
	// Crysknife: End
tail
`)
		require.Len(t, segments, 1)
		seg := segments[0]
		assert.Equal(t, guard.Deletion, seg.Kind)
		assert.Equal(t, []string{"\tOldCode();", "\tMoreOld();"}, seg.Stock)
	})

	t.Run("end_with_trailing_dash", func(t *testing.T) {
		segments := parse(t, `// Crysknife: Begin
added();
// Crysknife: End-
`)
		require.Len(t, segments, 1)
		assert.Equal(t, []string{"added();"}, segments[0].Body)
	})

	t.Run("single_line", func(t *testing.T) {
		segments := parse(t, `before();
	DoThing(); // Crysknife
after();
`)
		require.Len(t, segments, 1)
		seg := segments[0]
		assert.Equal(t, guard.SingleLine, seg.Style)
		assert.Equal(t, guard.Addition, seg.Kind)
		assert.Equal(t, []string{"\tDoThing();"}, seg.Body)
		assert.Equal(t, seg.Start, seg.End)
	})

	t.Run("single_line_deletion", func(t *testing.T) {
		segments := parse(t, `	// Old(); // Crysknife-
`)
		require.Len(t, segments, 1)
		seg := segments[0]
		assert.Equal(t, guard.Deletion, seg.Kind)
		assert.Equal(t, []string{"\tOld();"}, seg.Stock)
	})

	t.Run("next_line", func(t *testing.T) {
		segments := parse(t, `before();
// Crysknife adds hook
Hook();
after();
`)
		require.Len(t, segments, 1)
		seg := segments[0]
		assert.Equal(t, guard.NextLine, seg.Style)
		assert.Equal(t, " adds hook", seg.Comment)
		assert.Equal(t, []string{"Hook();"}, seg.Body)
		assert.Equal(t, 1, seg.Start)
		assert.Equal(t, 2, seg.End)
	})

	t.Run("multiple_segments_in_order", func(t *testing.T) {
		segments := parse(t, `a
x(); // Crysknife
b
// Crysknife: Begin
y();
// Crysknife: End
c
`)
		require.Len(t, segments, 2)
		assert.Equal(t, guard.SingleLine, segments[0].Style)
		assert.Equal(t, guard.Block, segments[1].Style)
		assert.Less(t, segments[0].End, segments[1].Start)
	})

	t.Run("foreign_tag_ignored", func(t *testing.T) {
		segments := parse(t, `// OtherPlugin: Begin
stock();
// OtherPlugin: End
`)
		assert.Empty(t, segments)
	})
}

func TestParser_Malformed(t *testing.T) {
	cases := []struct {
		name string
		text string
		line int // expected 1-based line number detail
	}{
		{"end_without_begin", "code();\n// Crysknife: End\n", 2},
		{"begin_without_end", "// Crysknife: Begin\ncode();\n", 1},
		{"nested_begin", "// Crysknife: Begin\n// Crysknife again: Begin\n// Crysknife: End\n", 2},
		{"guard_inside_block", "// Crysknife: Begin\nx(); // Crysknife\n// Crysknife: End\n", 2},
		{"next_line_at_eof", "code();\n// Crysknife\n", 2},
		{"next_line_followed_by_guard", "// Crysknife\n// Crysknife: End\n", 2},
		{"deletion_wrapping_live_code", "// Crysknife-: Begin\nnotCommented();\n// Crysknife: End\n", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines, _ := guard.SplitLines(tc.text)
			_, err := guard.NewParser(tag).Parse(lines)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrMalformedGuard))
			var ckErr *errors.CrysknifeError
			require.ErrorAs(t, err, &ckErr)
			assert.Equal(t, tc.line, ckErr.Details["line"])
		})
	}
}

func TestCommentRoundTrip(t *testing.T) {
	for _, line := range []string{"\tDoThing();", "    x = 1;", "", "\t"} {
		restored, ok := guard.Uncomment(guard.CommentOut(line))
		assert.True(t, ok)
		assert.Equal(t, line, restored)
	}
}
