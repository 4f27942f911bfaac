package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ekf-go/fusion"
	"ekf-go/measlog"
)

func TestReplayFeedsServer(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	recs, err := measlog.ParseReader(strings.NewReader("L 1 1 0\nR 1.5 0.78 0.1 50000\nL 1.1 1.1 100000\n"))
	require.NoError(t, err)

	n, err := Replay(ctx, recs, s.Addr().String(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Eventually(t, func() bool {
		est, ok := s.Latest()
		return ok && est.Timestamp == 100000
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.Stats().Count(fusion.OutcomeInitialized))
}

func TestReplayHonoursCancel(t *testing.T) {
	t.Parallel()
	recs, err := measlog.ParseReader(strings.NewReader("L 1 1 0\nL 1 1 60000000\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	n, err := Replay(ctx, recs, "127.0.0.1:9", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, n)
	assert.Less(t, time.Since(start), 5*time.Second)
}
