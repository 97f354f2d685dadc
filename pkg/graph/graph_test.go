package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	md := "See [[Project Plan]] and [[notes/2026|the notes]].\n[[Project Plan]] again."
	require.Equal(t, []string{"Project Plan", "notes/2026"}, ExtractLinks(md))
}

func TestExtractLinksNone(t *testing.T) {
	require.Empty(t, ExtractLinks("no links here [not one](http://example.com)"))
	require.Empty(t, ExtractLinks("[[]]"))
}

func TestExtractTags(t *testing.T) {
	md := "Top line #todo\nmid #project/alpha text #todo again\n#2026-goals"
	require.Equal(t, []string{"todo", "project/alpha", "2026-goals"}, ExtractTags(md))
}

func TestExtractTagsIgnoresMidWordHashes(t *testing.T) {
	require.Empty(t, ExtractTags("c#notatag and another#no"))
	require.Equal(t, []string{"yes"}, ExtractTags("start #yes"))
}
