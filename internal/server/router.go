package server

import (
	"log"

	"github.com/pbassett/roomrelay/internal/types"
)

// RoleFilter restricts delivery to connections whose user matches.
// A nil filter matches everyone.
type RoleFilter func(role types.Role) bool

func OperatorsOnly(role types.Role) bool {
	return role == types.RoleOperator
}

// auditExempt lists high-frequency, low-value kinds excluded from
// delivery audit logging.
var auditExempt = map[Kind]bool{
	KindResponseQueueUpdate: true,
}

// Router delivers frames to connections. Recipient sets are snapshotted
// before iteration, so a concurrent bind never produces a partial
// delivery relative to a later frame.
type Router struct {
	log      *log.Logger
	registry *Registry
}

func NewRouter(logger *log.Logger, registry *Registry) *Router {
	return &Router{log: logger, registry: registry}
}

// Publish delivers a frame to every live connection matching the
// filter, regardless of room.
func (r *Router) Publish(frame Frame, filter RoleFilter) {
	r.deliver(frame, r.registry.Clients(), filter, nil, "")
}

// PublishToRoom delivers a frame only to connections currently bound
// to the room.
func (r *Router) PublishToRoom(roomId string, frame Frame, filter RoleFilter) {
	r.deliver(frame, r.registry.ClientsInRoom(roomId), filter, nil, roomId)
}

// PublishToRoomExcept is PublishToRoom minus a single connection,
// normally the one whose action caused the frame.
func (r *Router) PublishToRoomExcept(roomId string, frame Frame, skip *Client) {
	r.deliver(frame, r.registry.ClientsInRoom(roomId), nil, skip, roomId)
}

func (r *Router) deliver(frame Frame, recipients []*Client, filter RoleFilter, skip *Client, roomId string) {
	var delivered []string
	for _, c := range recipients {
		if c == skip {
			continue
		}
		if filter != nil && !filter(c.user.Role) {
			continue
		}

		// a full or dead connection is skipped, never fatal to the rest
		if !c.queueFrame(frame) {
			r.log.Printf("dropping %s frame for %q: send queue full", frame.Kind(), c.user.Username)
			continue
		}
		delivered = append(delivered, c.user.Username)
	}

	if !auditExempt[frame.Kind()] {
		if roomId != "" {
			r.log.Printf("delivered %s to room %q: %v", frame.Kind(), roomId, delivered)
		} else {
			r.log.Printf("delivered %s: %v", frame.Kind(), delivered)
		}
	}
}
