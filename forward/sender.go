// Package forward pushes framed estimate messages to downstream consumers
// over UDP and TCP.
package forward

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Message flags. A target receives a message when every bit of the
// message flag is set in the target flag.
const (
	FlagEstimate = 1
	FlagReset    = 2

	FlagAll = FlagEstimate | FlagReset
)

const (
	tcpQueueSize    = 1000
	tcpDialTimeout  = 2 * time.Second
	tcpWriteTimeout = 5 * time.Second
	tcpRetryDelay   = 500 * time.Millisecond
)

type Message struct {
	Data []byte
	Flag uint32
}

type udpTarget struct {
	addr *net.UDPAddr
	flag uint32
}

type tcpClient struct {
	addr  string
	flag  uint32
	queue chan *Message
	wg    sync.WaitGroup
}

// Sender fans messages out to its targets. TCP targets are served by one
// goroutine each with a bounded queue; messages are dropped when it is full
// or the peer is unreachable.
type Sender struct {
	udpTargets []*udpTarget
	tcpClients []*tcpClient
	connUDP    *net.UDPConn
	header     []byte

	mu      sync.RWMutex
	running bool
}

func NewSender() *Sender {
	return &Sender{}
}

// SetHeader prefixes every message with hdr and a colon.
func (s *Sender) SetHeader(hdr string) {
	if hdr == "" {
		s.header = nil
	} else {
		s.header = []byte(hdr + ":")
	}
}

func (s *Sender) AddUDPTarget(addr string, flag uint32) error {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	s.udpTargets = append(s.udpTargets, &udpTarget{addr: uaddr, flag: flag})
	return nil
}

func (s *Sender) AddTCPTarget(addr string, flag uint32) {
	s.tcpClients = append(s.tcpClients, &tcpClient{
		addr:  addr,
		flag:  flag,
		queue: make(chan *Message, tcpQueueSize),
	})
}

// Targets returns the number of configured targets.
func (s *Sender) Targets() int {
	return len(s.udpTargets) + len(s.tcpClients)
}

func (s *Sender) Start() error {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connUDP = conn
	s.running = true
	for _, c := range s.tcpClients {
		c.wg.Add(1)
		go c.loop()
	}
	return nil
}

// Stop closes the UDP socket and drains the TCP clients. Send is a no-op
// afterwards.
func (s *Sender) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.connUDP.Close()
	for _, c := range s.tcpClients {
		close(c.queue)
	}
	s.mu.Unlock()

	for _, c := range s.tcpClients {
		c.wg.Wait()
	}
}

func (s *Sender) Send(data []byte, flag uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return
	}

	msgData := data
	if len(s.header) > 0 {
		msgData = make([]byte, len(s.header)+len(data))
		copy(msgData, s.header)
		copy(msgData[len(s.header):], data)
	}
	msg := &Message{Data: msgData, Flag: flag}

	for _, t := range s.udpTargets {
		if t.flag&flag == flag {
			if _, err := s.connUDP.WriteToUDP(msgData, t.addr); err != nil {
				log.WithFields(log.Fields{"target": t.addr.String(), "err": err}).Debug("UDP forward failed")
			}
		}
	}
	for _, c := range s.tcpClients {
		if c.flag&flag == flag {
			select {
			case c.queue <- msg:
			default:
				log.WithField("target", c.addr).Debug("TCP forward queue full")
			}
		}
	}
}

func (c *tcpClient) loop() {
	defer c.wg.Done()
	var conn net.Conn

	connect := func() bool {
		if conn != nil {
			return true
		}
		var err error
		conn, err = net.DialTimeout("tcp", c.addr, tcpDialTimeout)
		if err != nil {
			conn = nil
			return false
		}
		log.WithField("target", c.addr).Info("forward connected")
		return true
	}

	for msg := range c.queue {
		if !connect() {
			time.Sleep(tcpRetryDelay)
			if !connect() {
				continue
			}
		}
		conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
		if _, err := conn.Write(msg.Data); err != nil {
			log.WithFields(log.Fields{"target": c.addr, "err": err}).Warn("TCP forward failed")
			conn.Close()
			conn = nil
		}
	}
	if conn != nil {
		conn.Close()
	}
}
