// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestObjectCandidates(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want []string
	}{
		{"none", "no braces here", nil},
		{"single", `{"a":1}`, []string{`{"a":1}`}},
		{"prose around", `Sure! {"a":1} hope that helps`, []string{`{"a":1}`}},
		{"two in order", `{"a":1} then {"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"nested kept whole", `x {"a":{"b":{}}} y`, []string{`{"a":{"b":{}}}`}},
		{"braces inside strings", `{"t":"use } and { freely"}`, []string{`{"t":"use } and { freely"}`}},
		{"escaped quote", `{"t":"say \"}\" now"}`, []string{`{"t":"say \"}\" now"}`}},
		{"unclosed prefix", `{ oops {"a":1}`, []string{`{"a":1}`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ObjectCandidates(tc.in))
		})
	}
}

func TestStripFences(t *testing.T) {
	in := "Here you go:\n```json\n{\"a\":1}\n```\nDone."
	out := StripFences(in)
	assert.NotContains(t, out, "```")
	assert.Contains(t, out, `{"a":1}`)

	// Backticks inside content lines are left alone.
	assert.Equal(t, "{\"t\":\"```\"}", StripFences("{\"t\":\"```\"}"))
}

func TestDecodeFirstObject(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		got, err := DecodeFirstObject[sample](`{"name":"x","count":2}`, nil)
		require.NoError(t, err)
		assert.Equal(t, sample{Name: "x", Count: 2}, *got)
	})

	t.Run("fenced object", func(t *testing.T) {
		got, err := DecodeFirstObject[sample]("```json\n{\"name\":\"fenced\",\"count\":1}\n```", nil)
		require.NoError(t, err)
		assert.Equal(t, "fenced", got.Name)
	})

	t.Run("skips malformed candidate", func(t *testing.T) {
		got, err := DecodeFirstObject[sample](`{name: bad} and then {"name":"good","count":3}`, nil)
		require.NoError(t, err)
		assert.Equal(t, "good", got.Name)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := DecodeFirstObject[sample]("I cannot help with that.", nil)
		assert.ErrorIs(t, err, ErrNoJSONObject)
	})

	t.Run("only malformed objects", func(t *testing.T) {
		_, err := DecodeFirstObject[sample](`{"name": }`, nil)
		assert.ErrorIs(t, err, ErrNoJSONObject)
	})
}

func TestDecodeFirstObjectAccept(t *testing.T) {
	hasName := func(s *sample) bool { return s.Name != "" }

	t.Run("later candidate accepted", func(t *testing.T) {
		got, err := DecodeFirstObject(`{"count":1} {"name":"second"}`, hasName)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Name)
	})

	t.Run("nested object is not a candidate", func(t *testing.T) {
		got, err := DecodeFirstObject(`{"wrapper":{"name":"inner"}} {"name":"sibling"}`, hasName)
		require.NoError(t, err)
		assert.Equal(t, "sibling", got.Name)

		_, err = DecodeFirstObject(`{"wrapper":{"name":"inner"}}`, hasName)
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("malformed outer object hides its children", func(t *testing.T) {
		_, err := DecodeFirstObject(`{"list":[{"name":"inner"}],}`, hasName)
		assert.ErrorIs(t, err, ErrNoJSONObject)
	})

	t.Run("all rejected", func(t *testing.T) {
		_, err := DecodeFirstObject(`{"count":1}`, hasName)
		assert.ErrorIs(t, err, ErrRejected)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
