package measlog

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sync"

	"ekf-go/fusion"
)

// EstimateHeader names the columns written by EstimateWriter.
var EstimateHeader = []string{
	"est_px", "est_py", "est_vx", "est_vy",
	"meas_px", "meas_py",
	"gt_px", "gt_py", "gt_vx", "gt_vy",
}

// EstimateWriter writes one tab-separated row per processed record: the
// estimate, the measured position (radar converted to Cartesian) and the
// ground truth when present.
type EstimateWriter struct {
	c     io.Closer
	w     *csv.Writer
	wrote bool
}

// NewEstimateWriter creates path and returns a writer on it.
func NewEstimateWriter(path string) (*EstimateWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ew := NewEstimateWriterTo(f)
	ew.c = f
	return ew, nil
}

// NewEstimateWriterTo wraps an existing writer. Close flushes but does not
// close w.
func NewEstimateWriterTo(w io.Writer) *EstimateWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &EstimateWriter{w: cw}
}

func (ew *EstimateWriter) Write(est fusion.Estimate, rec Record) error {
	if !ew.wrote {
		if err := ew.w.Write(EstimateHeader); err != nil {
			return err
		}
		ew.wrote = true
	}
	mx, my := rec.Measurement.Cartesian()
	row := []string{
		formatFloat(est.PX), formatFloat(est.PY), formatFloat(est.VX), formatFloat(est.VY),
		formatFloat(mx), formatFloat(my),
	}
	if rec.HasTruth {
		for _, v := range rec.GroundTruth {
			row = append(row, formatFloat(v))
		}
	} else {
		row = append(row, "", "", "", "")
	}
	return ew.w.Write(row)
}

// Close flushes buffered rows and closes the underlying file if the writer
// owns it.
func (ew *EstimateWriter) Close() error {
	ew.w.Flush()
	err := ew.w.Error()
	if ew.c != nil {
		if cerr := ew.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LineWriter appends records in the log format. It is safe for concurrent
// use.
type LineWriter struct {
	mu sync.Mutex
	c  io.Closer
	w  *bufio.Writer
	n  int
}

// NewLineWriter creates path and returns a writer on it.
func NewLineWriter(path string) (*LineWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	lw := NewLineWriterTo(f)
	lw.c = f
	return lw, nil
}

// NewLineWriterTo wraps an existing writer.
func NewLineWriterTo(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

func (lw *LineWriter) WriteRecord(rec Record) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.WriteString(FormatLine(rec)); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	lw.n++
	return nil
}

// Count returns the number of records written.
func (lw *LineWriter) Count() int {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.n
}

func (lw *LineWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Flush()
}

func (lw *LineWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	err := lw.w.Flush()
	if lw.c != nil {
		if cerr := lw.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
