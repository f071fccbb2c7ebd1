package rowbind

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnName_Concatenation(t *testing.T) {
	require.Equal(t, "id", ColumnName(nil, "id"))
	require.Equal(t, "testresults_id", ColumnName([]string{"testresults_"}, "id"))
	require.Equal(t, "outer_inner_leaf", ColumnName([]string{"outer_", "inner_"}, "leaf"))
}

func TestDefaultPrefix(t *testing.T) {
	require.Equal(t, "testresults_", defaultPrefix("testresults", DefaultSeparator))
	require.Equal(t, "results.", defaultPrefix("results", "."))
}

func TestNormalizeAndLower(t *testing.T) {
	cases := map[string]string{
		`"Name"`:        "name",
		"`Camel`":       "camel",
		"[UPPER]":       "upper",
		"already_ok":    "already_ok",
		"MiXeD_123":     "mixed_123",
		`"unterminated`: `"unterminated`, // not trimmed; just lower
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeColAscii(in), "normalize %q", in)
	}
	require.Equal(t, "lower", toLowerAscii("lower"))
}

func TestParseFieldTag(t *testing.T) {
	tests := []struct {
		tag      string
		name     string
		identity bool
		prefix   string
		omit     bool
	}{
		{"", "", false, "", false},
		{"-", "", false, "", true},
		{"col", "col", false, "", false},
		{",identity", "", true, "", false},
		{"col,identity", "col", true, "", false},
		{"identity,col", "col", true, "", false},
		{"col,prefix=p_", "col", false, "p_", false},
		{"col,identity,prefix=p_", "col", true, "p_", false},
	}
	for _, tc := range tests {
		name, identity, prefix, omit := parseFieldTag(tc.tag)
		require.Equal(t, tc.name, name, "tag %q name", tc.tag)
		require.Equal(t, tc.identity, identity, "tag %q identity", tc.tag)
		require.Equal(t, tc.prefix, prefix, "tag %q prefix", tc.tag)
		require.Equal(t, tc.omit, omit, "tag %q omit", tc.tag)
	}
}
