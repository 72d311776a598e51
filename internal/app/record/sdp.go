package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/openmeet/openmeet/internal/core"
)

// Track describes one mirrored stream: where its RTP arrives and how it is
// encoded. One Track becomes one media section of the descriptor.
type Track struct {
	Kind  string
	Codec core.RtpCodec
	Port  int
}

// BuildDescriptor renders the session descriptor the recorder reads from its
// input pipe. Everything is local: the engine's plain transports push RTP to
// 127.0.0.1 on the given ports.
func BuildDescriptor(tracks []Track) (string, error) {
	if len(tracks) == 0 {
		return "", fmt.Errorf("no tracks to describe")
	}
	now := uint64(time.Now().Unix())
	desc := sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "recording",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "127.0.0.1"},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}
	for _, t := range tracks {
		md := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   t.Kind,
				Port:    sdp.RangedPort{Value: t.Port},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{strconv.Itoa(int(t.Codec.PayloadType))},
			},
		}
		rtpmap := fmt.Sprintf("%d %s/%d", t.Codec.PayloadType, codecName(t.Codec), t.Codec.ClockRate)
		if t.Kind == "audio" && t.Codec.Channels > 0 {
			rtpmap = fmt.Sprintf("%s/%d", rtpmap, t.Codec.Channels)
		}
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute("rtpmap:"+rtpmap, ""),
			sdp.NewAttribute("recvonly", ""),
		)
		desc.MediaDescriptions = append(desc.MediaDescriptions, md)
	}
	out, err := desc.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// codecName extracts the plain codec name from a mime type like "video/VP8".
func codecName(c core.RtpCodec) string {
	if i := strings.IndexByte(c.MimeType, '/'); i >= 0 {
		return c.MimeType[i+1:]
	}
	return c.MimeType
}
