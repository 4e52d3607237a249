package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSessionRef_Existing(t *testing.T) {
	ref := ParseSessionRef("sess-123")
	require.False(t, ref.IsNew())
	require.Equal(t, "sess-123", ref.ID())
}

func TestParseSessionRef_NewSentinelStripped(t *testing.T) {
	ref := ParseSessionRef("new-sess-123")
	require.True(t, ref.IsNew())
	require.Equal(t, "sess-123", ref.ID())
}

func TestParseSessionRef_EmptyGeneratesDraftID(t *testing.T) {
	orig := newSessionID
	newSessionID = func() string { return "generated-id" }
	defer func() { newSessionID = orig }()

	for _, raw := range []string{"", "  "} {
		ref := ParseSessionRef(raw)
		require.True(t, ref.IsNew())
		require.Equal(t, "generated-id", ref.ID())
	}
}

func TestParseSessionRef_TrimsWhitespace(t *testing.T) {
	ref := ParseSessionRef("  sess-9 ")
	require.False(t, ref.IsNew())
	require.Equal(t, "sess-9", ref.ID())
}
