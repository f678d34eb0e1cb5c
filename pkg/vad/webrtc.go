package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTCMode mirrors the aggressiveness modes of libwebrtc's VAD.
type WebRTCMode int

const (
	ModeQuality WebRTCMode = iota
	ModeLowBitrate
	ModeAggressive
	ModeVeryAggressive
)

// ParseWebRTCMode maps the config's string mode name to a WebRTCMode,
// defaulting to ModeAggressive for anything unrecognized.
func ParseWebRTCMode(name string) WebRTCMode {
	switch name {
	case "Quality":
		return ModeQuality
	case "LowBitrate":
		return ModeLowBitrate
	case "VeryAggressive":
		return ModeVeryAggressive
	default:
		return ModeAggressive
	}
}

// WebRTCPolicy wraps go-webrtcvad's GMM-based classifier for noisier market
// environments where a pure energy/zero-crossing heuristic over-triggers on
// ambient chatter and traffic.
type WebRTCPolicy struct {
	vad *webrtcvad.VAD
}

// NewWebRTCPolicy constructs a WebRTCPolicy at the given aggressiveness mode.
func NewWebRTCPolicy(mode WebRTCMode) (*WebRTCPolicy, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: init webrtcvad: %w", err)
	}
	if err := v.SetMode(int(mode)); err != nil {
		return nil, fmt.Errorf("vad: set mode: %w", err)
	}
	return &WebRTCPolicy{vad: v}, nil
}

func (p *WebRTCPolicy) Name() string { return "webrtc" }

// IsSpeech classifies a 10/20/30ms frame at 8/16/32/48kHz, the frame sizes
// go-webrtcvad accepts; any other combination is rejected by the underlying
// library and surfaces as an error here.
func (p *WebRTCPolicy) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	ok, err := p.vad.Process(sampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("vad: webrtc process: %w", err)
	}
	return ok, nil
}
