package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/app"
	"github.com/openmeet/openmeet/internal/directory"
	"github.com/openmeet/openmeet/internal/domain"
)

type Handlers struct {
	Manager   *app.Manager
	Directory *directory.Directory
}

// soft reports a failure inside a 200 reply. The polling clients key off the
// "error" field, not the status code.
func soft(c *gin.Context, err error) {
	log.Debug().Str("module", "adapters.http").Err(err).Str("path", c.FullPath()).Msg("soft error reply")
	c.JSON(http.StatusOK, gin.H{"error": err.Error()})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		soft(c, err)
		return false
	}
	return true
}

func (h *Handlers) roomOf(c *gin.Context, peerID domain.PeerID) (*app.Room, bool) {
	room, ok := h.Manager.RoomOfPeer(peerID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "peer not in any room"})
	}
	return room, ok
}

func (h *Handlers) FetchCapabilities(c *gin.Context) {
	caps := h.Manager.Capabilities()
	if len(caps) == 0 {
		c.JSON(http.StatusOK, gin.H{"error": "no rooms available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"routerRtpCapabilities": json.RawMessage(caps)})
}

func (h *Handlers) UserInfo(c *gin.Context) {
	var req struct {
		SiteNo string `json:"siteNo"`
	}
	if !bind(c, &req) {
		return
	}
	user, err := h.Directory.UserBySiteNo(req.SiteNo)
	if err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId": user.ID,
		"name":   user.Name,
		"roomId": user.RoomID,
		"admin":  user.Admin,
	})
}

func (h *Handlers) CreateRooms(c *gin.Context) {
	if err := h.Manager.ResetRooms(); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

func (h *Handlers) RoomState(c *gin.Context) {
	var req struct {
		RoomID domain.RoomID `json:"roomId"`
		PeerID domain.PeerID `json:"peerId"`
	}
	if !bind(c, &req) {
		return
	}
	if req.RoomID != "" {
		room, ok := h.Manager.Room(req.RoomID)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room.State())
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room.State())
}

func (h *Handlers) Heartbeat(c *gin.Context) {
	var req struct {
		PeerID domain.PeerID `json:"peerId"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.Heartbeat(req.PeerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ack": true})
}

func (h *Handlers) Leave(c *gin.Context) {
	var req struct {
		PeerID domain.PeerID `json:"peerId"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.Leave(req.PeerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *Handlers) CreateTransport(c *gin.Context) {
	var req struct {
		PeerID    domain.PeerID `json:"peerId"`
		Direction string        `json:"direction"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	reply, err := room.CreateTransport(req.PeerID, domain.MediaDirection(req.Direction))
	if err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transportOptions": reply})
}

func (h *Handlers) ConnectTransport(c *gin.Context) {
	var req struct {
		PeerID           domain.PeerID   `json:"peerId"`
		TransportID      string          `json:"transportId"`
		ConnectionParams json.RawMessage `json:"connectionParams"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	reply, err := room.ConnectTransport(req.PeerID, req.TransportID, req.ConnectionParams)
	if err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "reply": json.RawMessage(reply)})
}

func (h *Handlers) CloseTransport(c *gin.Context) {
	var req struct {
		PeerID      domain.PeerID `json:"peerId"`
		TransportID string        `json:"transportId"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.CloseTransport(req.PeerID, req.TransportID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *Handlers) SendTrack(c *gin.Context) {
	var req struct {
		PeerID        domain.PeerID   `json:"peerId"`
		TransportID   string          `json:"transportId"`
		Kind          string          `json:"kind"`
		RtpParameters json.RawMessage `json:"rtpParameters"`
		Paused        bool            `json:"paused"`
		MediaTag      domain.MediaTag `json:"mediaTag"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	id, err := room.SendTrack(req.PeerID, req.TransportID, req.Kind, req.RtpParameters, req.Paused, req.MediaTag)
	if err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handlers) RecvTrack(c *gin.Context) {
	var req struct {
		PeerID       domain.PeerID   `json:"peerId"`
		MediaPeerID  domain.PeerID   `json:"mediaPeerId"`
		MediaTag     domain.MediaTag `json:"mediaTag"`
		Capabilities json.RawMessage `json:"capabilities"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	reply, err := room.RecvTrack(req.PeerID, req.MediaPeerID, req.MediaTag, req.Capabilities)
	if err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type producerRequest struct {
	PeerID     domain.PeerID `json:"peerId"`
	ProducerID string        `json:"producerId"`
}

type consumerRequest struct {
	PeerID     domain.PeerID `json:"peerId"`
	ConsumerID string        `json:"consumerId"`
}

func (h *Handlers) PauseProducer(c *gin.Context) {
	var req producerRequest
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.PauseProducer(req.PeerID, req.ProducerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *Handlers) ResumeProducer(c *gin.Context) {
	var req producerRequest
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.ResumeProducer(req.PeerID, req.ProducerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

func (h *Handlers) CloseProducer(c *gin.Context) {
	var req producerRequest
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.CloseProducer(req.PeerID, req.ProducerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *Handlers) PauseConsumer(c *gin.Context) {
	var req consumerRequest
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.PauseConsumer(req.PeerID, req.ConsumerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *Handlers) ResumeConsumer(c *gin.Context) {
	var req consumerRequest
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.ResumeConsumer(req.PeerID, req.ConsumerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

func (h *Handlers) CloseConsumer(c *gin.Context) {
	var req consumerRequest
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.CloseConsumer(req.PeerID, req.ConsumerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *Handlers) ConsumerSetLayers(c *gin.Context) {
	var req struct {
		PeerID       domain.PeerID `json:"peerId"`
		ConsumerID   string        `json:"consumerId"`
		SpatialLayer int           `json:"spatialLayer"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.ConsumerSetLayers(req.PeerID, req.ConsumerID, req.SpatialLayer); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layersSet": true})
}

func (h *Handlers) StartRecord(c *gin.Context) {
	var req struct {
		PeerID          domain.PeerID `json:"peerId"`
		VideoProducerID string        `json:"videoProducerId"`
		AudioProducerID string        `json:"audioProducerId"`
	}
	if !bind(c, &req) {
		return
	}
	room, ok := h.roomOf(c, req.PeerID)
	if !ok {
		return
	}
	if err := room.StartRecord(req.PeerID, req.VideoProducerID, req.AudioProducerID); err != nil {
		soft(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "success"})
}
