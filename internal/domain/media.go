package domain

// PeerID is ephemeral: the client generates a fresh one per connection.
type PeerID string

// MediaTag labels a peer's track streams so subscribers can pick what to
// consume without inspecting RTP parameters.
type MediaTag string

const (
	TagCamVideo    MediaTag = "cam-video"
	TagCamAudio    MediaTag = "cam-audio"
	TagScreenVideo MediaTag = "screen-video"
	TagScreenAudio MediaTag = "screen-audio"
)

// MediaDirection is fixed at transport creation and never changes.
type MediaDirection string

const (
	DirectionSend MediaDirection = "send"
	DirectionRecv MediaDirection = "recv"
)

func (d MediaDirection) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}
