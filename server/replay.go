package server

import (
	"context"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"ekf-go/fusion"
	"ekf-go/measlog"
)

// Replay sends recs to dest over UDP, one line per datagram, spaced by the
// recorded timestamps divided by speed. speed <= 0 sends as fast as
// possible. It returns the number of lines sent.
func Replay(ctx context.Context, recs []measlog.Record, dest string, speed float64) (int, error) {
	conn, err := net.Dial("udp", dest)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	log.WithFields(log.Fields{"dest": dest, "records": len(recs), "speed": speed}).Info("replaying")

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	var firstTs int64
	startReal := time.Now()
	sent := 0
	for i, rec := range recs {
		ts := rec.Measurement.Timestamp
		if i == 0 {
			firstTs = ts
			startReal = time.Now()
		} else if speed > 0 {
			target := time.Duration(float64(ts-firstTs) / fusion.MicrosPerSecond / speed * float64(time.Second))
			if wait := target - time.Since(startReal); wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					return sent, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if _, err := conn.Write([]byte(measlog.FormatLine(rec))); err != nil {
			return sent, err
		}
		sent++
	}
	log.WithField("sent", sent).Info("replay finished")
	return sent, nil
}
