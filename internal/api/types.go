// Package api defines the JSON shapes of the caller-facing HTTP surface.
package api

import "github.com/stevenAIEngineer/babaru-regime/internal/memstore"

type ChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

type ChatResponse struct {
	Response    string `json:"response"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

type SpeakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type SpeakResponse struct {
	AudioBase64 string `json:"audio_base64,omitempty"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// UserMemory is the debug-inspector view of a user's aggregate state.
type UserMemory struct {
	Identity     IdentityView     `json:"identity"`
	Progression  ProgressionView  `json:"progression"`
	Missions     MissionsView     `json:"missions"`
	Profile      ProfileView      `json:"profile"`
	Relationship RelationshipView `json:"relationship"`
	Conversation []MessageView    `json:"conversations"`
}

type IdentityView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
}

type ProgressionView struct {
	Rank       string `json:"rank"`
	Points     int    `json:"points"`
	StreakDays int    `json:"streak_days"`
}

type MissionsView struct {
	Active    []string `json:"active"`
	Completed []string `json:"completed"`
	Failed    []string `json:"failed"`
}

type ProfileView struct {
	PrimaryGoal              string `json:"primary_goal"`
	Obstacles                string `json:"obstacles"`
	Wins                     string `json:"wins"`
	CommunicationPreferences string `json:"communication_preferences"`
}

type RelationshipView struct {
	FamiliarityLevel int `json:"familiarity_level"`
	TrustLevel       int `json:"trust_level"`
}

type MessageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MemoryFromState maps a store snapshot into the inspector view.
func MemoryFromState(st memstore.State) UserMemory {
	mem := UserMemory{
		Identity: IdentityView{
			UserID:      st.Identity.UserID,
			DisplayName: st.Identity.DisplayName,
			Timezone:    st.Identity.Timezone,
		},
		Progression: ProgressionView{
			Rank:       st.Progression.Rank,
			Points:     st.Progression.Points,
			StreakDays: st.Progression.StreakDays,
		},
		Missions: MissionsView{
			Active:    emptyIfNil(st.Missions.Active),
			Completed: emptyIfNil(st.Missions.Completed),
			Failed:    emptyIfNil(st.Missions.Failed),
		},
		Profile: ProfileView{
			PrimaryGoal:              st.Profile.PrimaryGoal,
			Obstacles:                st.Profile.Obstacles,
			Wins:                     st.Profile.Wins,
			CommunicationPreferences: st.Profile.CommunicationPreferences,
		},
		Relationship: RelationshipView{
			FamiliarityLevel: st.Relationship.Familiarity,
			TrustLevel:       st.Relationship.Trust,
		},
		Conversation: make([]MessageView, len(st.History)),
	}
	for i, m := range st.History {
		mem.Conversation[i] = MessageView{Role: m.Role, Content: m.Content}
	}
	return mem
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
