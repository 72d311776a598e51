package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmeet/openmeet/internal/core"
)

func TestBuildDescriptor(t *testing.T) {
	doc, err := BuildDescriptor([]Track{
		{
			Kind:  "video",
			Codec: core.RtpCodec{Kind: "video", MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
			Port:  50100,
		},
		{
			Kind:  "audio",
			Codec: core.RtpCodec{Kind: "audio", MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2},
			Port:  50102,
		},
	})
	require.NoError(t, err)

	assert.Contains(t, doc, "m=video 50100 RTP/AVP 96")
	assert.Contains(t, doc, "a=rtpmap:96 VP8/90000")
	assert.Contains(t, doc, "m=audio 50102 RTP/AVP 111")
	assert.Contains(t, doc, "a=rtpmap:111 opus/48000/2")
	assert.Contains(t, doc, "c=IN IP4 127.0.0.1")
	assert.Equal(t, 2, strings.Count(doc, "a=recvonly"))
}

func TestBuildDescriptorEmpty(t *testing.T) {
	_, err := BuildDescriptor(nil)
	assert.Error(t, err)
}

func TestCodecName(t *testing.T) {
	assert.Equal(t, "VP8", codecName(core.RtpCodec{MimeType: "video/VP8"}))
	assert.Equal(t, "opus", codecName(core.RtpCodec{MimeType: "audio/opus"}))
	assert.Equal(t, "raw", codecName(core.RtpCodec{MimeType: "raw"}))
}
