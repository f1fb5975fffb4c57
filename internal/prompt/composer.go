// Package prompt assembles the per-turn system instruction for the
// generation backend. Composition is pure: no I/O, deterministic for
// identical inputs, and total over arbitrary rank and trigger values.
package prompt

import (
	"fmt"
	"strings"

	"github.com/stevenAIEngineer/babaru-regime/internal/memstore"
)

// Rank is the user's progression tier. Unknown values resolve to Newcomer.
type Rank int

const (
	RankNewcomer Rank = iota
	RankCreator
	RankMaker
	RankStar
	RankSuperstar
)

func ParseRank(s string) Rank {
	switch s {
	case "Creator":
		return RankCreator
	case "Maker":
		return RankMaker
	case "Star":
		return RankStar
	case "Superstar":
		return RankSuperstar
	default:
		return RankNewcomer
	}
}

func (r Rank) String() string {
	switch r {
	case RankCreator:
		return "Creator"
	case RankMaker:
		return "Maker"
	case RankStar:
		return "Star"
	case RankSuperstar:
		return "Superstar"
	default:
		return "Newcomer"
	}
}

// Trigger is the situational framing of a turn. Unknown values resolve to
// TriggerGeneral.
type Trigger int

const (
	TriggerGeneral Trigger = iota
	TriggerMorning
	TriggerMissionReview
	TriggerUserStuck
	TriggerUserSilent
)

func ParseTrigger(s string) Trigger {
	switch s {
	case "CONTEXT_MORNING":
		return TriggerMorning
	case "CONTEXT_MISSION_REVIEW":
		return TriggerMissionReview
	case "CONTEXT_USER_STUCK":
		return TriggerUserStuck
	case "CONTEXT_USER_SILENT":
		return TriggerUserSilent
	default:
		return TriggerGeneral
	}
}

func (t Trigger) String() string {
	switch t {
	case TriggerMorning:
		return "CONTEXT_MORNING"
	case TriggerMissionReview:
		return "CONTEXT_MISSION_REVIEW"
	case TriggerUserStuck:
		return "CONTEXT_USER_STUCK"
	case TriggerUserSilent:
		return "CONTEXT_USER_SILENT"
	default:
		return "CONTEXT_GENERAL"
	}
}

// streakThreshold is the streak length above which the on-fire modifier is
// appended.
const streakThreshold = 7

// Compose builds the full system instruction from a context trigger and a
// memory snapshot. It never fails; out-of-enum ranks and triggers degrade to
// their defaults.
func Compose(trigger Trigger, st memstore.State) string {
	rank := ParseRank(st.Progression.Rank)

	parts := []string{
		coreCharacter,
		coreRules,
		"Rank Protocol: " + rankDirective(rank),
		"Current Context: " + contextDirective(trigger),
		datasheet(rank, st),
		"Tone Setting: " + toneDirective(st.Relationship.Familiarity),
	}

	if st.Progression.StreakDays > streakThreshold {
		parts = append(parts, "Special Status: "+modifierOnFire)
	}

	return strings.Join(parts, "\n\n")
}

func datasheet(rank Rank, st memstore.State) string {
	name := st.Identity.DisplayName
	if name == "" {
		name = "Human"
	}
	goal := st.Profile.PrimaryGoal
	if goal == "" {
		goal = "Unknown Goal"
	}
	obstacles := st.Profile.Obstacles
	if obstacles == "" {
		obstacles = "Unknown Obstacles"
	}

	missions := make([]string, len(st.Missions.Active))
	for i, m := range st.Missions.Active {
		missions[i] = sanitize(m)
	}

	return fmt.Sprintf(`USER DATASHEET:
Name: %s
Rank: %s
Active Mission: [%s]
Primary Goal: %s
Known Obstacles: %s`,
		sanitize(name),
		rank,
		strings.Join(missions, ", "),
		sanitize(goal),
		sanitize(obstacles))
}

// sanitize keeps injected free text on one line so it cannot fabricate
// datasheet fields or new prompt sections.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func toneDirective(familiarity int) string {
	switch {
	case familiarity < 3:
		return toneLow
	case familiarity < 7:
		return toneMedium
	default:
		return toneHigh
	}
}
