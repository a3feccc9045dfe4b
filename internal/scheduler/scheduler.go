package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pbassett/roomrelay/internal/generation"
	"github.com/pbassett/roomrelay/internal/stats"
	"github.com/pbassett/roomrelay/internal/types"
)

const (
	activeRoomsMetric = "SchedulerActiveRooms"
	turnsTotalMetric  = "SchedulerTurnsTotal"
)

// ErrQueueBusy is returned when a room's queue is already draining and
// the trigger does not bypass it.
var ErrQueueBusy = errors.New("response queue is busy")

// TurnSink receives turn lifecycle events from the scheduler. The
// session coordinator implements it: it broadcasts queue updates to
// the room and persists completed replies.
type TurnSink interface {
	// Roster returns the room's current agent configuration, so a
	// mid-drain settings change is observed before each turn.
	Roster(roomExternalId string) types.RoomSettings
	// QueueUpdate reports a transition: drain start, per-turn
	// advance, or exhaustion.
	QueueUpdate(roomExternalId string, active bool, current string, remaining []string)
	// TurnComplete delivers one agent's finished turn, successful or
	// not. The scheduler advances regardless.
	TurnComplete(roomExternalId string, agent types.Agent, res generation.Result, continued bool)
}

type roomState struct {
	active  bool
	queue   []QueueEntry
	current *QueueEntry
}

// Scheduler orders and sequentially drains a per-room queue of agents.
// State is keyed by room so two rooms never contend for one queue, and
// it is deliberately not persisted: a restart drops in-flight turns.
type Scheduler struct {
	log       *log.Logger
	stats     stats.StatsProvider
	gen       generation.Generator
	sink      TurnSink
	turnDelay time.Duration

	mu    sync.Mutex
	rooms map[string]*roomState
}

func NewScheduler(logger *log.Logger, statsProvider stats.StatsProvider, gen generation.Generator, sink TurnSink, turnDelay time.Duration) *Scheduler {
	statsProvider.RegisterMetric(activeRoomsMetric)
	statsProvider.RegisterMetric(turnsTotalMetric)

	return &Scheduler{
		log:       logger,
		stats:     statsProvider,
		gen:       gen,
		sink:      sink,
		turnDelay: turnDelay,
		rooms:     make(map[string]*roomState),
	}
}

// Active reports whether a room's queue is currently draining.
func (s *Scheduler) Active(roomExternalId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.rooms[roomExternalId]
	return ok && st.active
}

// Trigger starts draining a room's queue. An auto trigger on an active
// room is rejected with ErrQueueBusy; force/regenerate bypass the
// shared queue and run their single turn immediately. An empty queue
// (no active agents) drops the trigger.
func (s *Scheduler) Trigger(ctx context.Context, room types.Room, trig Trigger) error {
	queue := BuildQueue(trig, room.Settings)
	if len(queue) == 0 {
		s.log.Printf("dropping %s trigger for room %q: no eligible agents", trig.Kind, room.ExternalId)
		return nil
	}

	if trig.Kind == TriggerForce || trig.Kind == TriggerRegenerate {
		go s.runSingleTurn(ctx, room, trig, queue[0])
		return nil
	}

	s.mu.Lock()
	st, ok := s.rooms[room.ExternalId]
	if !ok {
		st = &roomState{}
		s.rooms[room.ExternalId] = st
	}

	if st.active {
		s.mu.Unlock()
		return ErrQueueBusy
	}

	st.active = true
	st.queue = queue
	st.current = nil
	s.mu.Unlock()

	s.stats.Incr(activeRoomsMetric)
	go s.drain(ctx, room, trig)

	return nil
}

// runSingleTurn serves force/regenerate without touching the room's
// shared queue state.
func (s *Scheduler) runSingleTurn(ctx context.Context, room types.Room, trig Trigger, entry QueueEntry) {
	s.stats.Incr(turnsTotalMetric)

	agent := types.Agent{Id: entry.AgentId, DisplayName: entry.DisplayName, Muted: entry.Muted}
	done := make(chan generation.Result, 1)
	s.gen.Generate(ctx, generation.Request{
		RoomId:         room.Id,
		RoomExternalId: room.ExternalId,
		Agent:          agent,
		Prompt:         trig.MessageText,
		History:        trig.History,
	}, done)

	res := <-done
	s.sink.TurnComplete(room.ExternalId, agent, res, false)
}

func (s *Scheduler) drain(ctx context.Context, room types.Room, trig Trigger) {
	first := true

	for {
		s.mu.Lock()
		st := s.rooms[room.ExternalId]

		if len(st.queue) == 0 {
			st.active = false
			st.current = nil
			s.mu.Unlock()
			s.stats.Decr(activeRoomsMetric)
			s.sink.QueueUpdate(room.ExternalId, false, "", nil)
			return
		}

		entry := st.queue[0]
		st.queue = st.queue[1:]

		roster := s.sink.Roster(room.ExternalId)
		if !eligible(entry, roster) {
			// substitute the first remaining eligible member
			sub, rest, ok := firstEligible(st.queue, roster)
			if !ok {
				st.active = false
				st.current = nil
				st.queue = nil
				s.mu.Unlock()
				s.stats.Decr(activeRoomsMetric)
				s.log.Printf("aborting drain for room %q: no eligible agents remain", room.ExternalId)
				s.sink.QueueUpdate(room.ExternalId, false, "", nil)
				return
			}
			entry = sub
			st.queue = rest
		}

		st.current = &entry
		remaining := make([]string, len(st.queue))
		for i, e := range st.queue {
			remaining[i] = e.DisplayName
		}
		s.mu.Unlock()

		s.sink.QueueUpdate(room.ExternalId, true, entry.DisplayName, remaining)
		s.stats.Incr(turnsTotalMetric)

		agent := types.Agent{Id: entry.AgentId, DisplayName: entry.DisplayName}
		done := make(chan generation.Result, 1)
		s.gen.Generate(ctx, generation.Request{
			RoomId:         room.Id,
			RoomExternalId: room.ExternalId,
			Agent:          agent,
			Continue:       trig.Continuation && first,
			Prompt:         trig.MessageText,
			History:        trig.History,
		}, done)

		res := <-done
		s.sink.TurnComplete(room.ExternalId, agent, res, trig.Continuation && first)
		first = false

		// short pause so back-to-back turns don't spin in a tight loop
		select {
		case <-time.After(s.turnDelay):
		case <-ctx.Done():
			s.mu.Lock()
			st.active = false
			st.current = nil
			st.queue = nil
			s.mu.Unlock()
			s.stats.Decr(activeRoomsMetric)
			return
		}
	}
}

func eligible(entry QueueEntry, settings types.RoomSettings) bool {
	for _, a := range settings.ActiveAgents() {
		if a.Id == entry.AgentId {
			return true
		}
	}
	return false
}

func firstEligible(queue []QueueEntry, settings types.RoomSettings) (QueueEntry, []QueueEntry, bool) {
	for i, e := range queue {
		if eligible(e, settings) {
			rest := make([]QueueEntry, 0, len(queue)-1)
			rest = append(rest, queue[:i]...)
			rest = append(rest, queue[i+1:]...)
			return e, rest, true
		}
	}
	return QueueEntry{}, nil, false
}
