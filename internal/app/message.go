package app

import (
	"encoding/json"

	"github.com/openmeet/openmeet/internal/core"
)

// Action is the numeric opcode of the signaling socket protocol.
type Action int

const (
	ActHeartbeat Action = 0
	ActConnected Action = 1
	ActJoin      Action = 2
	ActReady     Action = 3
	ActLeave     Action = 4
	ActMessage   Action = 5
	ActSuccess   Action = 6
)

type envelope struct {
	Act  Action `json:"act"`
	Data any    `json:"data"`
}

// EncodeAction frames an action envelope for the signaling socket.
func EncodeAction(act Action, data any) (core.Frame, error) {
	b, err := json.Marshal(envelope{Act: act, Data: data})
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
