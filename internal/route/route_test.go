package route

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DoyleJ11/party-client/internal/engine"
)

func TestRoutes(t *testing.T) {
	assert.Equal(t, Route("/party/abc"), Lobby("abc"))
	assert.Equal(t, Route("/party/game/abc"), Game("abc"))
	assert.Equal(t, Route("/party/results/abc"), Results("abc"))
	assert.Equal(t, Route("/copy"), Round(engine.StepCopy, "abc"))
	assert.Equal(t, Route("/party/results/abc"), Round(engine.StepResults, "abc"))
}

func TestHistory_ReplaceSwapsTop(t *testing.T) {
	h := NewHistory(nil)
	assert.Equal(t, Route(""), h.Current())

	h.Navigate(Lobby("s"), false)
	h.Navigate(Game("s"), false)
	h.Navigate("/prompt", true)

	assert.Equal(t, []Entry{
		{To: Lobby("s")},
		{To: "/prompt", Replace: true},
	}, h.Entries())
	assert.Equal(t, Route("/prompt"), h.Current())
}
