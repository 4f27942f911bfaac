package forward

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ekf-go/fusion"
)

func TestFormatEstimate(t *testing.T) {
	t.Parallel()
	got := string(FormatEstimate(fusion.Estimate{Timestamp: 1477010443000000, PX: 1.5, PY: -2, VX: 0.125, VY: 3}, 7))
	want := "estimate: 62,7,1477010443000000,1.5000,-2.0000,0.1250,3.0000\r\n"
	assert.Equal(t, want, got)
	assert.Len(t, got, 62)

	reset := string(FormatReset(42, 65535))
	assert.Equal(t, "reset: 20,65535,42\r\n", reset)
	assert.Len(t, reset, 20)
}

func TestFrameLengthField(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 5, 100, 150} {
		b := frame("x", strings.Repeat("a", n))
		field := strings.TrimSpace(string(b[2 : 2+lengthField]))
		got, err := strconv.Atoi(field)
		require.NoError(t, err)
		assert.Equal(t, len(b), got)
	}
}

func TestSenderUDP(t *testing.T) {
	t.Parallel()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	s := NewSender()
	s.SetHeader("ekf")
	require.NoError(t, s.AddUDPTarget(pc.LocalAddr().String(), FlagEstimate))
	require.NoError(t, s.Start())
	defer s.Stop()

	s.Send([]byte("skipped"), FlagReset)
	s.Send([]byte("hello"), FlagEstimate)

	buf := make([]byte, 64)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "ekf:hello", string(buf[:n]))
}

func TestSenderTCP(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewSender()
	s.AddTCPTarget(ln.Addr().String(), FlagAll)
	assert.Equal(t, 1, s.Targets())
	require.NoError(t, s.Start())

	s.Send(FormatReset(1, 1), FlagReset)

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "reset: 15,1,1\r\n", line)

	s.Stop()
	s.Stop()
	s.Send([]byte("after stop"), FlagEstimate)
}
