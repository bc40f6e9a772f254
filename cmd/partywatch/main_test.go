package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/party-client/internal/devserver"
	"github.com/DoyleJ11/party-client/internal/round"
	"github.com/DoyleJ11/party-client/pkg/types"
)

func execute(t *testing.T, base string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--api-url", base,
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--lobby-poll", "50ms",
		"--game-poll", "50ms",
	}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCreate_PrintsCodeAndQR(t *testing.T) {
	srv := devserver.New()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	png := filepath.Join(t.TempDir(), "join.png")
	out, err := execute(t, hs.URL, "--token", "host", "create", "--min", "3", "--qr", "--qr-png", png)
	require.NoError(t, err)

	m := regexp.MustCompile(`party code: (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	assert.FileExists(t, png)
	assert.Contains(t, out, "█", "terminal QR is drawn with block characters")
	assert.Equal(t, 1, srv.Calls("create"))
}

func TestCreate_SoloGamePlaysToResults(t *testing.T) {
	srv := devserver.New()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	out, err := execute(t, hs.URL,
		"--token", "solo", "--player-id", "solo",
		"create", "--min", "1", "--max", "4", "--watch", "--ready", "--auto-start", "--play")
	require.NoError(t, err, out)

	assert.Contains(t, out, "submitted prompt round")
	assert.Contains(t, out, "submitted copy round")
	assert.Contains(t, out, "submitted vote round")
	assert.Contains(t, out, "final standings")
	assert.Equal(t, []string{"create", "ready", "start"}, srv.CallLog("create", "ready", "start"))
}

func TestJoin_UnknownCodeFails(t *testing.T) {
	srv := devserver.New()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	_, err := execute(t, hs.URL, "--token", "guest", "join", "NOPE00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No party with that code")
}

func TestWatch_RemovedSessionEnds(t *testing.T) {
	srv := devserver.New()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	snap := srv.CreateSession("host", 3, 8)
	srv.Remove(snap.SessionID)

	out, err := execute(t, hs.URL, "--token", "host", "watch", snap.SessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "lobby closed: Party session not found")
}

func TestShareTarget(t *testing.T) {
	assert.Equal(t, "ABC123", shareTarget("", "ABC123"))
	assert.Equal(t, "https://play.example/join/ABC123", shareTarget("https://play.example/join/", "ABC123"))
}

func TestAnswer(t *testing.T) {
	cases := []struct {
		name   string
		active round.Active
		want   types.SubmitRequest
	}{
		{
			name:   "prompt",
			active: round.Active{Type: types.RoundPrompt},
			want:   types.SubmitRequest{Phrase: placeholderPhrases[0]},
		},
		{
			name:   "copy",
			active: round.Active{Type: types.RoundCopy, Copy: &round.CopyPayload{OriginalPhrase: "PAPER MOON"}},
			want:   types.SubmitRequest{Phrase: "NOT PAPER MOON"},
		},
		{
			name:   "vote",
			active: round.Active{Type: types.RoundVote, Vote: &round.VotePayload{PhrasesetID: "ps", Phrases: []string{"A", "B"}}},
			want:   types.SubmitRequest{Vote: "A"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, answer(tc.active, 0))
		})
	}
}
