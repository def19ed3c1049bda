package rtc

import (
	"fmt"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// ValidateDescription parses desc and returns the kinds of its media
// sections in order. Unparseable or media-less descriptions wrap
// domain.ErrNegotiationFailure.
func ValidateDescription(desc webrtc.SessionDescription) ([]string, error) {
	switch desc.Type {
	case webrtc.SDPTypeOffer, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer:
	default:
		return nil, fmt.Errorf("%w: unexpected description type %q", domain.ErrNegotiationFailure, desc.Type.String())
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return nil, fmt.Errorf("%w: parse sdp: %v", domain.ErrNegotiationFailure, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: no media sections", domain.ErrNegotiationFailure)
	}
	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		kinds = append(kinds, md.MediaName.Media)
	}
	return kinds, nil
}
