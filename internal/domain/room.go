package domain

type (
	RoomID   string
	RoomName string
)

type Room struct {
	ID   RoomID   `json:"id"`
	Name RoomName `json:"name"`
}
