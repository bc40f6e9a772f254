package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/DoyleJ11/party-client/pkg/types"
)

type CreateRequest struct {
	MinPlayers int `json:"min_players,omitempty"`
	MaxPlayers int `json:"max_players,omitempty"`
}

func sessionPath(sessionID, suffix string) string {
	return "/party/" + url.PathEscape(sessionID) + suffix
}

// SessionStatus is the Session Status Fetcher: one idempotent read of the
// authoritative snapshot.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (types.SessionSnapshot, error) {
	var snap types.SessionSnapshot
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/status"), nil, &snap)
	return snap, err
}

func (c *Client) CreateSession(ctx context.Context, req CreateRequest) (types.JoinResult, error) {
	var out types.JoinResult
	err := c.do(ctx, http.MethodPost, "/party/create", req, &out)
	return out, err
}

func (c *Client) JoinSession(ctx context.Context, partyCode string) (types.JoinResult, error) {
	var out types.JoinResult
	body := struct {
		PartyCode string `json:"party_code"`
	}{PartyCode: partyCode}
	err := c.do(ctx, http.MethodPost, "/party/join", body, &out)
	return out, err
}

func (c *Client) JoinSessionByID(ctx context.Context, sessionID string) (types.JoinResult, error) {
	var out types.JoinResult
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/join"), nil, &out)
	return out, err
}

func (c *Client) action(ctx context.Context, sessionID, name string) (types.ActionResult, error) {
	var out types.ActionResult
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/"+name), nil, &out)
	return out, err
}

func (c *Client) MarkReady(ctx context.Context, sessionID string) (types.ActionResult, error) {
	return c.action(ctx, sessionID, "ready")
}

func (c *Client) LeaveSession(ctx context.Context, sessionID string) (types.ActionResult, error) {
	return c.action(ctx, sessionID, "leave")
}

func (c *Client) StartSession(ctx context.Context, sessionID string) (types.ActionResult, error) {
	return c.action(ctx, sessionID, "start")
}

func (c *Client) AddAI(ctx context.Context, sessionID string) (types.ActionResult, error) {
	return c.action(ctx, sessionID, "add-ai")
}

// PingSession asks the server to nudge every participant. Delivery is best-effort.
func (c *Client) PingSession(ctx context.Context, sessionID string) (types.ActionResult, error) {
	return c.action(ctx, sessionID, "ping")
}

func (c *Client) StartPromptRound(ctx context.Context, sessionID string) (types.PromptRound, error) {
	var out types.PromptRound
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/rounds/prompt"), nil, &out)
	return out, err
}

func (c *Client) StartCopyRound(ctx context.Context, sessionID string) (types.CopyRound, error) {
	var out types.CopyRound
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/rounds/copy"), nil, &out)
	return out, err
}

func (c *Client) StartVoteRound(ctx context.Context, sessionID string) (types.VoteRound, error) {
	var out types.VoteRound
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/rounds/vote"), nil, &out)
	return out, err
}

func (c *Client) SubmitRound(ctx context.Context, sessionID, roundID string, req types.SubmitRequest) (types.SubmitResult, error) {
	var out types.SubmitResult
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/rounds/"+url.PathEscape(roundID)+"/submit"), req, &out)
	return out, err
}

func (c *Client) SessionResults(ctx context.Context, sessionID string) (types.Results, error) {
	var out types.Results
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/results"), nil, &out)
	return out, err
}
