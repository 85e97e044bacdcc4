package rtpout

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/Satya110584/ndi"
)

// RTPWriter is an interface for writing RTP packets.
type RTPWriter interface {
	WriteRTP(packet *rtp.Packet) error
}

// UDPWriter sends RTP packets to one UDP destination.
type UDPWriter struct {
	conn net.Conn
	buf  []byte

	mu      sync.Mutex
	packets uint64
	bytes   uint64
}

// DialUDP connects a writer to addr ("host:port").
func DialUDP(addr string) (*UDPWriter, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rtpout: dial %s: %w", addr, err)
	}
	return &UDPWriter{conn: conn, buf: make([]byte, 1500)}, nil
}

// WriteRTP marshals and sends one packet.
func (w *UDPWriter) WriteRTP(packet *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	size := packet.MarshalSize()
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	n, err := packet.MarshalTo(w.buf[:size])
	if err != nil {
		return fmt.Errorf("rtpout: marshal: %w", err)
	}
	if _, err := w.conn.Write(w.buf[:n]); err != nil {
		return fmt.Errorf("rtpout: write: %w", err)
	}
	w.packets++
	w.bytes += uint64(n)
	return nil
}

// Stats returns packets and bytes written.
func (w *UDPWriter) Stats() (packets, bytes uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets, w.bytes
}

// Close closes the socket.
func (w *UDPWriter) Close() error {
	return w.conn.Close()
}

// Forwarder packetizes interleaved audio and writes it out.
type Forwarder struct {
	packetizer *L16Packetizer
	writer     RTPWriter
	closer     io.Closer
}

// NewForwarder sends L16 audio to the UDP address target.
func NewForwarder(target string, ssrc uint32) (*Forwarder, error) {
	p, err := NewL16Packetizer(ssrc, DefaultPayloadType, DefaultMTU)
	if err != nil {
		return nil, err
	}
	w, err := DialUDP(target)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewForwarder",
		"target":   target,
		"ssrc":     ssrc,
	}).Info("forwarding audio as RTP L16")
	return &Forwarder{packetizer: p, writer: w, closer: w}, nil
}

// NewForwarderTo uses an existing writer; Close does not close it.
func NewForwarderTo(w RTPWriter, p *L16Packetizer) *Forwarder {
	return &Forwarder{packetizer: p, writer: w}
}

// Forward sends one frame.
func (f *Forwarder) Forward(frame *ndi.AudioFrameInterleaved16) error {
	packets, err := f.packetizer.Packetize(frame)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		if err := f.writer.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the writer when the forwarder owns it.
func (f *Forwarder) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
