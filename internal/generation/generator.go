// Package generation wraps the external text-generation service. The
// relay core never produces reply text itself; it hands a request and a
// completion channel to a Generator and advances the turn queue when
// the result arrives.
package generation

import (
	"context"

	"github.com/pbassett/roomrelay/internal/types"
)

type Request struct {
	RoomId         int
	RoomExternalId string
	Agent          types.Agent
	// Continue extends the latest unfinished reply instead of
	// starting a new message.
	Continue bool
	Prompt   string
	History  []types.Message
}

type Result struct {
	MessageId string
	Text      string
	Err       error
}

// Generator produces one reply per turn. Implementations must send
// exactly one Result on done, including on failure.
type Generator interface {
	Generate(ctx context.Context, req Request, done chan<- Result)
}
