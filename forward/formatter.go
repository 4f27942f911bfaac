package forward

import (
	"strconv"
	"strings"

	"ekf-go/fusion"
)

// Frames look like
//
//	estimate:NNN,seq,ts,px,py,vx,vy\r\n
//
// where NNN is the total frame length in bytes, space padded on the left
// when shorter than three digits.
const lengthField = 3

func frame(tag string, fields ...string) []byte {
	var b strings.Builder
	b.WriteString(tag)
	b.WriteString(":")
	start := b.Len()
	b.WriteString(strings.Repeat(" ", lengthField))
	for _, f := range fields {
		b.WriteByte(',')
		b.WriteString(f)
	}
	b.WriteString("\r\n")

	out := []byte(b.String())
	n := len(out)
	if n >= 100 {
		out[start] = byte('0' + (n/100)%10)
	}
	if n >= 10 {
		out[start+1] = byte('0' + (n/10)%10)
	}
	out[start+2] = byte('0' + n%10)
	return out
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// FormatEstimate frames est with a wrapping sequence number.
func FormatEstimate(est fusion.Estimate, seq uint16) []byte {
	return frame("estimate",
		strconv.FormatUint(uint64(seq), 10),
		strconv.FormatInt(est.Timestamp, 10),
		fixed(est.PX), fixed(est.PY), fixed(est.VX), fixed(est.VY),
	)
}

// FormatReset announces that the filter dropped its track at ts.
func FormatReset(ts int64, seq uint16) []byte {
	return frame("reset",
		strconv.FormatUint(uint64(seq), 10),
		strconv.FormatInt(ts, 10),
	)
}
