// Package rtpout forwards converted audio as RTP.
package rtpout

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"

	"github.com/Satya110584/ndi"
)

// DefaultMTU keeps packets under a typical path MTU.
const DefaultMTU = 1200

// DefaultPayloadType is the first dynamic RTP payload type.
const DefaultPayloadType = 96

const rtpHeaderSize = 12

// L16Packetizer splits interleaved 16-bit audio into RTP L16 packets
// (RFC 3551, big-endian samples). Packets always hold whole sample frames.
type L16Packetizer struct {
	ssrc        uint32
	payloadType uint8
	mtu         int
	sequencer   rtp.Sequencer

	mu        sync.Mutex
	timestamp uint32
	started   bool
}

// NewL16Packetizer creates a packetizer. mtu <= 0 selects DefaultMTU.
func NewL16Packetizer(ssrc uint32, pt uint8, mtu int) (*L16Packetizer, error) {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if mtu <= rtpHeaderSize+2 {
		return nil, fmt.Errorf("rtpout: mtu %d too small", mtu)
	}
	return &L16Packetizer{
		ssrc:        ssrc,
		payloadType: pt,
		mtu:         mtu,
		sequencer:   rtp.NewRandomSequencer(),
	}, nil
}

// Packetize converts one audio frame to RTP packets. Timestamps advance by
// the sample count, so the clock rate equals the frame's sample rate.
func (p *L16Packetizer) Packetize(frame *ndi.AudioFrameInterleaved16) ([]*rtp.Packet, error) {
	if frame.Channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ndi.ErrInvalidFrame, frame.Channels)
	}
	if len(frame.Data) < frame.Samples*frame.Channels {
		return nil, fmt.Errorf("%w: short interleaved buffer", ndi.ErrInvalidFrame)
	}
	perPacket := (p.mtu - rtpHeaderSize) / (2 * frame.Channels)
	if perPacket == 0 {
		return nil, fmt.Errorf("rtpout: %d channels do not fit mtu %d", frame.Channels, p.mtu)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var packets []*rtp.Packet
	for start := 0; start < frame.Samples; start += perPacket {
		n := min(perPacket, frame.Samples-start)
		payload := make([]byte, n*frame.Channels*2)
		for i, v := range frame.Data[start*frame.Channels : (start+n)*frame.Channels] {
			binary.BigEndian.PutUint16(payload[i*2:], uint16(v))
		}
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         !p.started,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      p.timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		})
		p.started = true
		p.timestamp += uint32(n)
	}
	return packets, nil
}

// SSRC returns the synchronization source.
func (p *L16Packetizer) SSRC() uint32 { return p.ssrc }

// PayloadType returns the configured payload type.
func (p *L16Packetizer) PayloadType() uint8 { return p.payloadType }
