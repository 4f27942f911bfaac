// Package server ingests measurement lines over UDP and feeds them to the
// fusion pipeline.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"ekf-go/forward"
	"ekf-go/fusion"
	"ekf-go/measlog"
	"ekf-go/web"
)

const (
	DefaultAddr   = ":44333"
	MaxPacketSize = 65535
	readBufSize   = 256 * 1024
)

// Stats counts processed lines by outcome.
type Stats struct {
	Malformed int
	Outcomes  map[fusion.Outcome]int
}

func (s Stats) Count(o fusion.Outcome) int {
	return s.Outcomes[o]
}

// UdpServer owns a single pipeline. Every datagram may carry one or more
// newline separated measurement lines; they are processed in order under a
// lock so the filter sees a serial stream.
type UdpServer struct {
	conn      *net.UDPConn
	pipeline  *fusion.FusionPipeline
	recorder  *measlog.LineWriter
	webHub    *web.Hub
	forwarder *forward.Sender
	running   atomic.Bool

	mu        sync.Mutex
	latest    fusion.Estimate
	hasLatest bool
	stats     Stats
	seq       uint16
}

// NewUdpServer listens on addr, DefaultAddr when empty.
func NewUdpServer(addr string, pipeline *fusion.FusionPipeline) (*UdpServer, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadBuffer(readBufSize); err != nil {
		log.WithError(err).Debug("set UDP read buffer")
	}

	return &UdpServer{
		conn:     conn,
		pipeline: pipeline,
		stats:    Stats{Outcomes: make(map[fusion.Outcome]int)},
	}, nil
}

// SetRecorder makes the server append every accepted line to w.
func (s *UdpServer) SetRecorder(w *measlog.LineWriter) {
	s.recorder = w
}

func (s *UdpServer) SetWebHub(h *web.Hub) {
	s.webHub = h
}

// SetForwarder sends every estimate and reset notice through f.
func (s *UdpServer) SetForwarder(f *forward.Sender) {
	s.forwarder = f
}

func (s *UdpServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Latest returns the estimate after the last successful cycle.
func (s *UdpServer) Latest() (fusion.Estimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

func (s *UdpServer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Stats{Malformed: s.stats.Malformed, Outcomes: make(map[fusion.Outcome]int, len(s.stats.Outcomes))}
	for k, v := range s.stats.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// Start reads datagrams until ctx is cancelled or Stop is called.
func (s *UdpServer) Start(ctx context.Context) error {
	s.running.Store(true)
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	buf := make([]byte, MaxPacketSize)
	log.WithField("addr", s.conn.LocalAddr().String()).Info("UDP server listening")

	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("UDP read")
			continue
		}
		s.HandleDatagram(buf[:n], addr)
	}
}

func (s *UdpServer) Stop() {
	if s.running.Swap(false) {
		s.conn.Close()
	}
}

// Close releases the socket when Start was never called.
func (s *UdpServer) Close() error {
	s.running.Store(false)
	return s.conn.Close()
}

// HandleDatagram processes every line in data. from is used for logging
// only and may be nil.
func (s *UdpServer) HandleDatagram(data []byte, from net.Addr) {
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		rec, err := measlog.ParseLine(string(line))
		if err != nil {
			s.mu.Lock()
			s.stats.Malformed++
			s.mu.Unlock()
			log.WithFields(log.Fields{"from": addrString(from), "err": err}).Warn("dropping malformed line")
			continue
		}
		s.handleRecord(rec)
	}
}

func (s *UdpServer) handleRecord(rec measlog.Record) {
	s.mu.Lock()
	out, err := s.pipeline.Process(rec.Measurement)
	s.stats.Outcomes[out]++
	var est fusion.Estimate
	publish := false
	if out != fusion.OutcomeRejected && s.pipeline.Initialized() {
		est = s.pipeline.Estimate()
		s.latest, s.hasLatest = est, true
		publish = true
	}
	seq := s.seq
	if publish || out == fusion.OutcomeReset {
		s.seq++
	}
	s.mu.Unlock()

	fields := log.Fields{
		"sensor":  rec.Measurement.Sensor,
		"ts":      rec.Measurement.Timestamp,
		"outcome": out,
	}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("measurement not applied")
		if out == fusion.OutcomeRejected {
			return
		}
	} else {
		log.WithFields(fields).Debug("measurement processed")
	}

	if s.recorder != nil {
		if err := s.recorder.WriteRecord(rec); err != nil {
			log.WithError(err).Error("record measurement")
		}
	}
	if s.forwarder != nil {
		switch {
		case out == fusion.OutcomeReset:
			s.forwarder.Send(forward.FormatReset(rec.Measurement.Timestamp, seq), forward.FlagReset)
		case publish:
			s.forwarder.Send(forward.FormatEstimate(est, seq), forward.FlagEstimate)
		}
	}
	if publish && s.webHub != nil {
		b, err := json.Marshal(est)
		if err != nil {
			log.WithError(err).Error("marshal estimate")
			return
		}
		s.webHub.Broadcast(b)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
