package scheduler

import (
	"math/rand"
	"regexp"
	"sort"

	"github.com/pbassett/roomrelay/internal/types"
)

type TriggerKind string

const (
	TriggerAuto       TriggerKind = "auto"
	TriggerForce      TriggerKind = "force"
	TriggerRegenerate TriggerKind = "regenerate"
)

// Trigger is one generation request for a room.
type Trigger struct {
	Kind TriggerKind
	// AgentId names the single agent for force/regenerate.
	AgentId     string
	MessageText string
	// Continuation marks an empty human resubmit right after an AI
	// turn; LastSpeakerId is the agent that produced that turn.
	Continuation  bool
	LastSpeakerId string
	History       []types.Message
}

// QueueEntry is an ephemeral turn descriptor, rebuilt per trigger from
// the room's configured roster.
type QueueEntry struct {
	AgentId     string
	DisplayName string
	Muted       bool
}

func entryFor(a types.Agent) QueueEntry {
	return QueueEntry{AgentId: a.Id, DisplayName: a.DisplayName, Muted: a.Muted}
}

// BuildQueue computes the ordered response plan for a trigger.
//
// force/regenerate yield exactly the named agent, bypassing ordering
// and mute state. A continuation puts the last AI speaker first if it
// is still active. Otherwise agents mentioned in the message are
// ordered by earliest match position and unmentioned active agents are
// appended in random order.
func BuildQueue(trig Trigger, settings types.RoomSettings) []QueueEntry {
	if trig.Kind == TriggerForce || trig.Kind == TriggerRegenerate {
		if trig.AgentId == "" || trig.AgentId == types.NoneAgentId {
			return nil
		}

		for _, a := range settings.Agents {
			if a.Id == trig.AgentId {
				return []QueueEntry{entryFor(a)}
			}
		}
		// unknown to the roster, but the caller asked for it by name
		return []QueueEntry{{AgentId: trig.AgentId, DisplayName: trig.AgentId}}
	}

	active := settings.ActiveAgents()
	if len(active) == 0 {
		return nil
	}

	if trig.Continuation {
		for i, a := range active {
			if a.Id == trig.LastSpeakerId {
				rest := make([]types.Agent, 0, len(active)-1)
				rest = append(rest, active[:i]...)
				rest = append(rest, active[i+1:]...)
				shuffleAgents(rest)

				queue := []QueueEntry{entryFor(a)}
				for _, r := range rest {
					queue = append(queue, entryFor(r))
				}
				return queue
			}
		}
		// last speaker gone or muted, fall through to mention ordering
	}

	type match struct {
		agent types.Agent
		pos   int
	}

	var matched []match
	var unmatched []types.Agent
	for _, a := range active {
		pos := mentionIndex(trig.MessageText, a.DisplayName)
		if pos >= 0 {
			matched = append(matched, match{agent: a, pos: pos})
		} else {
			unmatched = append(unmatched, a)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].pos < matched[j].pos
	})
	shuffleAgents(unmatched)

	var queue []QueueEntry
	for _, m := range matched {
		queue = append(queue, entryFor(m.agent))
	}
	for _, a := range unmatched {
		queue = append(queue, entryFor(a))
	}

	return queue
}

// mentionIndex returns the earliest position of name in text, matched
// case-insensitively on word boundaries and accepting a trailing
// possessive "'s". Returns -1 when the name does not appear.
func mentionIndex(text, name string) int {
	if text == "" || name == "" {
		return -1
	}

	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `(?:'s)?\b`)
	if err != nil {
		return -1
	}

	loc := re.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func shuffleAgents(agents []types.Agent) {
	rand.Shuffle(len(agents), func(i, j int) {
		agents[i], agents[j] = agents[j], agents[i]
	})
}
