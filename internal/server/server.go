package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"

	"github.com/pbassett/roomrelay/internal/database"
	"github.com/pbassett/roomrelay/internal/gateway"
	"github.com/pbassett/roomrelay/internal/generation"
	"github.com/pbassett/roomrelay/internal/scheduler"
	"github.com/pbassett/roomrelay/internal/stats"
	"github.com/pbassett/roomrelay/internal/types"
)

const (
	activeConnsMetric  = "ActiveConnections"
	chatMessagesMetric = "ChatMessagesRelayed"

	historyLimit = 50
)

// RelayServer is the session coordinator: it validates room and role
// preconditions for every inbound frame and dispatches to the
// registry, the router, and the turn scheduler.
type RelayServer struct {
	log      *log.Logger
	db       database.RelayRepository
	gw       *gateway.Gateway
	registry *Registry
	router   *Router
	sched    *scheduler.Scheduler
	stats    stats.StatsProvider

	maxConnsPerOrigin int
	originMu          sync.Mutex
	originCounts      map[string]int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRelayServer(logger *log.Logger, db database.RelayRepository, gw *gateway.Gateway,
	gen generation.Generator, statsProvider stats.StatsProvider,
	maxConnsPerOrigin int, turnDelay time.Duration) *RelayServer {

	statsProvider.RegisterMetric(activeConnsMetric)
	statsProvider.RegisterMetric(chatMessagesMetric)

	registry := NewRegistry(logger)
	ctx, cancel := context.WithCancel(context.Background())

	rs := &RelayServer{
		log:               logger,
		db:                db,
		gw:                gw,
		registry:          registry,
		router:            NewRouter(logger, registry),
		stats:             statsProvider,
		maxConnsPerOrigin: maxConnsPerOrigin,
		originCounts:      make(map[string]int),
		ctx:               ctx,
		cancel:            cancel,
	}
	rs.sched = scheduler.NewScheduler(logger, statsProvider, gen, rs, turnDelay)

	return rs
}

func (rs *RelayServer) Registry() *Registry { return rs.registry }
func (rs *RelayServer) Router() *Router     { return rs.router }

// TryRegister admits a connection unless its origin is at the
// connection cap. Callers must refuse the socket when it reports false.
func (rs *RelayServer) TryRegister(c *Client) bool {
	rs.originMu.Lock()
	if rs.maxConnsPerOrigin > 0 && rs.originCounts[c.origin] >= rs.maxConnsPerOrigin {
		rs.originMu.Unlock()
		rs.log.Printf("refusing connection from origin %q: at cap", c.origin)
		return false
	}
	rs.originCounts[c.origin]++
	rs.originMu.Unlock()

	rs.registry.Register(c)
	rs.stats.Incr(activeConnsMetric)
	return true
}

// disconnect tears down a connection exactly once: registry removal,
// origin slot release, and a member-left notice to its room.
func (rs *RelayServer) disconnect(c *Client) {
	roomId, wasBound := rs.registry.Remove(c)

	rs.originMu.Lock()
	if rs.originCounts[c.origin] > 0 {
		rs.originCounts[c.origin]--
	}
	rs.originMu.Unlock()

	rs.stats.Decr(activeConnsMetric)

	if wasBound {
		rs.router.PublishToRoom(roomId, NewMemberLeft(roomId, c.user.Id, c.user.Username), nil)
	}
}

func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.cancel()
	for _, c := range rs.registry.Clients() {
		c.stopClient()
	}
	return nil
}

// dispatch routes one inbound frame. The kind set is closed: a frame
// outside it gets a structured roomError, never a silent drop.
func (rs *RelayServer) dispatch(c *Client, frame ClientFrame) {
	switch frame.Type {
	case KindJoinRoom:
		rs.handleJoinRoom(c, frame)
	case KindCreateRoom:
		rs.handleCreateRoom(c, frame)
	case KindLeaveRoom:
		rs.handleLeaveRoom(c)
	case KindRoomSettingsUpdate:
		rs.handleRoomSettingsUpdate(c, frame)
	case KindDeleteRoom:
		rs.handleDeleteRoom(c, frame)
	case KindListRooms:
		rs.handleListRooms(c)
	case KindRequestAIResponse:
		rs.handleRequestAIResponse(c, frame)
	case KindChatMessage:
		rs.handleChatMessage(c, frame)
	default:
		c.queueFrame(NewRoomError("unsupported message type", string(frame.Type)))
	}
}

// requireRoom resolves the sender's current room and re-validates
// membership against the store before invoking the handler. Every
// room-scoped handler goes through here, so a handler can never
// broadcast outside the sender's room on stale in-memory state.
func (rs *RelayServer) requireRoom(c *Client, action string, fn func(room types.Room)) {
	roomId, ok := rs.registry.RoomOf(c)
	if !ok {
		c.queueFrame(NewRoomError("you are not in a room", action))
		return
	}

	dbRoom, err := rs.db.GetRoomByExternalId(roomId)
	if err != nil {
		c.queueFrame(NewRoomError("room not found", action))
		return
	}

	if !rs.db.MembershipExists(c.user.Id, dbRoom.Id) {
		// in-memory binding contradicts the store; drop the binding
		rs.registry.Unbind(c)
		c.queueFrame(NewRoomError("you are not a member of this room", action))
		return
	}

	fn(toRoom(dbRoom))
}

func (rs *RelayServer) handleJoinRoom(c *Client, frame ClientFrame) {
	if frame.RoomId == "" {
		c.queueFrame(NewRoomError("room id is required", "joinRoom"))
		return
	}

	dbRoom, err := rs.db.GetRoomByExternalId(frame.RoomId)
	if err != nil {
		c.queueFrame(NewRoomError("room not found", "joinRoom"))
		return
	}

	role := string(types.MemberMember)
	if dbRoom.OwnerId == c.user.Id {
		role = string(types.MemberCreator)
	}

	_, err = rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
		return rs.db.CreateMembershipTx(tx, c.user.Id, dbRoom.Id, role)
	})
	if err != nil {
		rs.log.Println("create membership:", err)
		c.queueFrame(NewRoomError("failed to join room", "joinRoom"))
		return
	}

	prev, registered := rs.registry.Bind(c, dbRoom.ExternalId)
	if !registered {
		// connection disappeared mid-join
		return
	}

	if prev != "" && prev != dbRoom.ExternalId {
		rs.router.PublishToRoom(prev, NewMemberLeft(prev, c.user.Id, c.user.Username), nil)
	}

	members := rs.members(dbRoom.Id)
	history := rs.history(dbRoom.Id)

	c.queueFrame(NewRoomJoined(toRoom(dbRoom), members, history))
	rs.router.PublishToRoomExcept(dbRoom.ExternalId, NewMemberJoined(dbRoom.ExternalId, c.user.Id, c.user.Username), c)
}

func (rs *RelayServer) handleCreateRoom(c *Client, frame ClientFrame) {
	if frame.Name == "" {
		c.queueFrame(NewRoomError("room name is required", "createRoom"))
		return
	}

	sid, err := shortid.Generate()
	if err != nil {
		rs.log.Println("generate shortid:", err)
		c.queueFrame(NewRoomError("failed to create room", "createRoom"))
		return
	}

	var settings []byte
	if frame.Settings != nil {
		settings, err = json.Marshal(frame.Settings)
		if err != nil {
			c.queueFrame(NewRoomError("invalid room settings", "createRoom"))
			return
		}
	}

	res, err := rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
		room, err := rs.db.CreateRoomTx(tx, database.CreateRoomParams{
			Name:        frame.Name,
			Description: frame.Description,
			OwnerId:     c.user.Id,
			ExternalId:  sid,
			Settings:    settings,
		})
		if err != nil {
			return nil, err
		}

		if _, err := rs.db.CreateMembershipTx(tx, c.user.Id, room.Id, string(types.MemberCreator)); err != nil {
			return nil, err
		}

		return room, nil
	})
	if err != nil {
		rs.log.Println("create room:", err)
		c.queueFrame(NewRoomError("failed to create room", "createRoom"))
		return
	}

	c.queueFrame(NewRoomCreated(toRoom(res.(database.Room))))
}

func (rs *RelayServer) handleLeaveRoom(c *Client) {
	roomId, ok := rs.registry.Unbind(c)
	if !ok {
		c.queueFrame(NewRoomError("you are not in a room", "leaveRoom"))
		return
	}

	c.queueFrame(NewRoomLeft(roomId))
	rs.router.PublishToRoom(roomId, NewMemberLeft(roomId, c.user.Id, c.user.Username), nil)
}

func (rs *RelayServer) handleRoomSettingsUpdate(c *Client, frame ClientFrame) {
	rs.requireRoom(c, "roomSettingsUpdate", func(room types.Room) {
		if frame.Settings == nil {
			c.queueFrame(NewRoomError("settings are required", "roomSettingsUpdate"))
			return
		}

		if !rs.canManage(c, room) {
			c.queueFrame(NewRoomError("insufficient permissions", "roomSettingsUpdate"))
			return
		}

		settings, err := json.Marshal(frame.Settings)
		if err != nil {
			c.queueFrame(NewRoomError("invalid room settings", "roomSettingsUpdate"))
			return
		}

		_, err = rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
			return nil, rs.db.UpdateRoomSettingsTx(tx, room.Id, settings)
		})
		if err != nil {
			rs.log.Println("update room settings:", err)
			c.queueFrame(NewRoomError("failed to update settings", "roomSettingsUpdate"))
			return
		}

		rs.router.PublishToRoom(room.ExternalId, NewRoomSettingsChanged(room.ExternalId, *frame.Settings), nil)
	})
}

func (rs *RelayServer) handleDeleteRoom(c *Client, frame ClientFrame) {
	if frame.RoomId != "" {
		// deleting an arbitrary room by id is an operator action
		if c.user.Role != types.RoleOperator {
			c.queueFrame(NewRoomError("insufficient permissions", "deleteRoom"))
			return
		}

		dbRoom, err := rs.db.GetRoomByExternalId(frame.RoomId)
		if err != nil {
			c.queueFrame(NewRoomError("room not found", "deleteRoom"))
			return
		}

		rs.deleteRoom(c, toRoom(dbRoom))
		return
	}

	rs.requireRoom(c, "deleteRoom", func(room types.Room) {
		if !rs.canManage(c, room) {
			c.queueFrame(NewRoomError("insufficient permissions", "deleteRoom"))
			return
		}

		rs.deleteRoom(c, room)
	})
}

// deleteRoom soft-deletes: the flag is set once and never cleared.
func (rs *RelayServer) deleteRoom(c *Client, room types.Room) {
	_, err := rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
		return nil, rs.db.SoftDeleteRoomTx(tx, room.Id)
	})
	if err != nil {
		rs.log.Println("delete room:", err)
		c.queueFrame(NewRoomError("failed to delete room", "deleteRoom"))
		return
	}

	rs.router.PublishToRoom(room.ExternalId, NewRoomDeleted(room.ExternalId), nil)
	for _, member := range rs.registry.ClientsInRoom(room.ExternalId) {
		rs.registry.Unbind(member)
	}

	if c.user.Role == types.RoleOperator {
		rs.router.Publish(NewRoomDeleted(room.ExternalId), OperatorsOnly)
	}
}

func (rs *RelayServer) handleListRooms(c *Client) {
	dbRooms, err := rs.db.ListRooms()
	if err != nil {
		rs.log.Println("list rooms:", err)
		c.queueFrame(NewRoomError("failed to list rooms", "listRooms"))
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, r := range dbRooms {
		rooms = append(rooms, toRoom(r))
	}

	c.queueFrame(NewRoomsList(rooms))
}

func (rs *RelayServer) handleChatMessage(c *Client, frame ClientFrame) {
	rs.requireRoom(c, "chatMessage", func(room types.Room) {
		text := frame.Text()
		if text == "" {
			return
		}

		res, err := rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
			return rs.db.CreateMessageTx(tx, database.Message{
				Id:        uuid.NewString(),
				RoomId:    room.Id,
				UserId:    c.user.Id,
				Sender:    c.user.Username,
				Content:   text,
				Complete:  true,
				CreatedAt: Now(),
			})
		})
		if err != nil {
			rs.log.Println("create message:", err)
			c.queueFrame(NewRoomError("failed to send message", "chatMessage"))
			return
		}

		rs.stats.Incr(chatMessagesMetric)
		rs.router.PublishToRoom(room.ExternalId, NewChatMessage(room.ExternalId, toMessage(res.(database.Message))), nil)
	})
}

func (rs *RelayServer) handleRequestAIResponse(c *Client, frame ClientFrame) {
	rs.requireRoom(c, "requestAIResponse", func(room types.Room) {
		if frame.RoomId != "" && frame.RoomId != room.ExternalId {
			c.queueFrame(NewRoomError("room mismatch", "requestAIResponse"))
			return
		}

		trig, ok := rs.buildTrigger(c, room, frame)
		if !ok {
			return
		}

		if err := rs.sched.Trigger(rs.ctx, room, trig); err != nil {
			if errors.Is(err, scheduler.ErrQueueBusy) {
				c.queueFrame(NewQueueSuppressed(room.ExternalId, "response queue is busy"))
				return
			}
			rs.log.Println("trigger:", err)
			c.queueFrame(NewRoomError("failed to schedule response", "requestAIResponse"))
		}
	})
}

func (rs *RelayServer) buildTrigger(c *Client, room types.Room, frame ClientFrame) (scheduler.Trigger, bool) {
	trig := scheduler.Trigger{
		MessageText: frame.LatestUserMessageText,
		History:     rs.history(room.Id),
	}

	switch frame.Trigger {
	case "", string(scheduler.TriggerAuto):
		trig.Kind = scheduler.TriggerAuto
	case string(scheduler.TriggerForce):
		trig.Kind = scheduler.TriggerForce
	case string(scheduler.TriggerRegenerate):
		trig.Kind = scheduler.TriggerRegenerate
	default:
		c.queueFrame(NewRoomError("unknown trigger", "requestAIResponse"))
		return scheduler.Trigger{}, false
	}

	if trig.Kind == scheduler.TriggerForce || trig.Kind == scheduler.TriggerRegenerate {
		if frame.Character == "" {
			c.queueFrame(NewRoomError("character is required", "requestAIResponse"))
			return scheduler.Trigger{}, false
		}
		trig.AgentId = resolveAgentId(room.Settings, frame.Character)
		return trig, true
	}

	// an empty resubmit right after an AI turn continues that turn
	if trig.MessageText == "" {
		if latest, err := rs.db.GetLatestMessage(room.Id); err == nil && latest.AgentId != "" {
			trig.Continuation = true
			trig.LastSpeakerId = latest.AgentId
		}
	}

	return trig, true
}

// Roster implements scheduler.TurnSink: a fresh read so mid-drain
// settings changes are observed before each turn.
func (rs *RelayServer) Roster(roomExternalId string) types.RoomSettings {
	dbRoom, err := rs.db.GetRoomByExternalId(roomExternalId)
	if err != nil {
		return types.RoomSettings{}
	}
	return parseSettings(dbRoom.Settings)
}

// QueueUpdate implements scheduler.TurnSink.
func (rs *RelayServer) QueueUpdate(roomExternalId string, active bool, current string, remaining []string) {
	rs.router.PublishToRoom(roomExternalId, NewResponseQueueUpdate(roomExternalId, active, current, remaining), nil)
}

// TurnComplete implements scheduler.TurnSink: persists the finished
// reply through the gateway and relays it to the room. A failed turn
// is reported and the scheduler advances.
func (rs *RelayServer) TurnComplete(roomExternalId string, agent types.Agent, res generation.Result, continued bool) {
	if res.Err != nil {
		rs.log.Printf("generation failed for %q in room %q: %v", agent.DisplayName, roomExternalId, res.Err)
		rs.router.PublishToRoom(roomExternalId, NewRoomError(agent.DisplayName+" failed to respond", "generate"), nil)
		return
	}

	dbRoom, err := rs.db.GetRoomByExternalId(roomExternalId)
	if err != nil {
		rs.log.Println("turn complete:", err)
		return
	}

	if continued {
		if latest, lerr := rs.db.GetLatestMessage(dbRoom.Id); lerr == nil && latest.AgentId == agent.Id {
			content := latest.Content + res.Text
			_, err = rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
				return nil, rs.db.CompleteMessageTx(tx, latest.Id, content)
			})
			if err != nil {
				rs.log.Println("continue message:", err)
				return
			}

			latest.Content = content
			latest.Complete = true
			rs.router.PublishToRoom(roomExternalId, NewChatMessage(roomExternalId, toMessage(latest)), nil)
			return
		}
	}

	msgId := res.MessageId
	if msgId == "" {
		msgId = uuid.NewString()
	}

	stored, err := rs.gw.Enqueue(rs.ctx, func(tx *sql.Tx) (any, error) {
		return rs.db.CreateMessageTx(tx, database.Message{
			Id:        msgId,
			RoomId:    dbRoom.Id,
			AgentId:   agent.Id,
			Sender:    agent.DisplayName,
			Content:   res.Text,
			Complete:  true,
			CreatedAt: Now(),
		})
	})
	if err != nil {
		rs.log.Println("store agent message:", err)
		return
	}

	rs.stats.Incr(chatMessagesMetric)
	rs.router.PublishToRoom(roomExternalId, NewChatMessage(roomExternalId, toMessage(stored.(database.Message))), nil)
}

// canManage reports whether the user may change or delete the room:
// operators always, otherwise the room's creator or a room moderator.
func (rs *RelayServer) canManage(c *Client, room types.Room) bool {
	if c.user.Role == types.RoleOperator {
		return true
	}
	if room.OwnerId == c.user.Id {
		return true
	}

	members, err := rs.db.GetMembers(room.Id)
	if err != nil {
		return false
	}
	for _, m := range members {
		if m.AccountId == c.user.Id {
			return m.Role == string(types.MemberCreator) || m.Role == string(types.MemberModerator)
		}
	}
	return false
}

// members loads the room's member list in a single joined query.
func (rs *RelayServer) members(roomId int) []types.Member {
	room, err := rs.db.GetRoomWithMembers(roomId)
	if err != nil {
		rs.log.Println("get members:", err)
		return nil
	}

	members := make([]types.Member, len(room.Memberships))
	for i, m := range room.Memberships {
		members[i] = types.Member{
			UserId:   m.AccountId,
			Username: m.Username,
			Role:     types.MemberRole(m.Role),
		}
	}
	return members
}

func (rs *RelayServer) history(roomId int) []types.Message {
	dbMessages, err := rs.db.GetMessages(roomId, historyLimit)
	if err != nil {
		rs.log.Println("get messages:", err)
		return nil
	}

	messages := make([]types.Message, len(dbMessages))
	for i, m := range dbMessages {
		messages[i] = toMessage(m)
	}
	return messages
}

func resolveAgentId(settings types.RoomSettings, character string) string {
	for _, a := range settings.Agents {
		if a.Id == character || strings.EqualFold(a.DisplayName, character) {
			return a.Id
		}
	}
	return character
}

func parseSettings(raw []byte) types.RoomSettings {
	var settings types.RoomSettings
	if len(raw) > 0 {
		json.Unmarshal(raw, &settings)
	}
	return settings
}

func toRoom(r database.Room) types.Room {
	return types.Room{
		Id:          r.Id,
		ExternalId:  r.ExternalId,
		Name:        r.Name,
		Description: r.Description,
		Deleted:     r.Deleted,
		Settings:    parseSettings(r.Settings),
		OwnerId:     r.OwnerId,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		UserId:    m.UserId,
		AgentId:   m.AgentId,
		Sender:    m.Sender,
		Content:   m.Content,
		Complete:  m.Complete,
		Timestamp: m.CreatedAt,
	}
}
