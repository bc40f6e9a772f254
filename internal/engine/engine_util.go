package engine

import "github.com/DoyleJ11/party-client/pkg/types"

// IsHost scans the roster for playerID holding the host flag.
func IsHost(s types.SessionSnapshot, playerID string) bool {
	if playerID == "" {
		return false
	}
	for _, p := range s.Participants {
		if p.IsHost && (p.Identity() == playerID || p.ID == playerID) {
			return true
		}
	}
	return false
}

// FillPlan is the lobby's view of whether starting now needs AI filler.
type FillPlan struct {
	HumansTotal    int
	HumansReady    int
	AITotal        int
	Total          int
	MinPlayers     int
	MaxPlayers     int
	AllHumansReady bool
	AIToAdd        int
}

// CanStart reports whether a start, after topping up, meets the player bounds.
func (p FillPlan) CanStart() bool {
	after := p.Total + p.AIToAdd
	if !p.AllHumansReady || after < p.MinPlayers {
		return false
	}
	return p.MaxPlayers == 0 || after <= p.MaxPlayers
}

// PlanAutoFill counts the roster. AI filler is only planned once every human
// is ready, and never beyond the maximum.
func PlanAutoFill(s types.SessionSnapshot) FillPlan {
	plan := FillPlan{
		Total:      len(s.Participants),
		MinPlayers: s.MinPlayers,
		MaxPlayers: s.MaxPlayers,
	}
	for _, p := range s.Participants {
		if p.IsAI {
			plan.AITotal++
			continue
		}
		plan.HumansTotal++
		if p.Status == types.Ready {
			plan.HumansReady++
		}
	}
	plan.AllHumansReady = plan.HumansTotal > 0 && plan.HumansReady == plan.HumansTotal

	if plan.AllHumansReady && plan.Total < plan.MinPlayers {
		plan.AIToAdd = plan.MinPlayers - plan.Total
		if plan.MaxPlayers > 0 && plan.Total+plan.AIToAdd > plan.MaxPlayers {
			plan.AIToAdd = max(0, plan.MaxPlayers-plan.Total)
		}
	}
	return plan
}
