package signaling

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

const (
	maxSDPSize       = 64 * 1024
	maxCandidateSize = 2048
)

// validateSDP parses an offer or answer and requires at least one media
// section.
func validateSDP(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: expected %s", ErrInvalidSDP, want)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSDP)
	}
	if len(desc.SDP) > maxSDPSize {
		return fmt.Errorf("%w: larger than %d bytes", ErrInvalidSDP, maxSDPSize)
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media sections", ErrInvalidSDP)
	}
	return nil
}

// validateCandidate parses a trickled candidate. An empty candidate marks the
// end of gathering and is always accepted.
func validateCandidate(c webrtc.ICECandidateInit) error {
	raw := strings.TrimSpace(c.Candidate)
	if raw == "" {
		return nil
	}
	if len(raw) > maxCandidateSize {
		return fmt.Errorf("%w: too long", ErrInvalidICE)
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:")); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidICE, err)
	}
	return nil
}
