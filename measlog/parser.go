// Package measlog reads and writes text measurement logs.
//
// One record per line, fields separated by tabs or spaces:
//
//	L  px  py  timestamp_us  [gt_px gt_py gt_vx gt_vy]
//	R  rho theta rho_dot timestamp_us  [gt_px gt_py gt_vx gt_vy]
package measlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"ekf-go/fusion"
)

const groundTruthLen = 4

// ErrMalformedLine is wrapped by every line-level parse error.
var ErrMalformedLine = errors.New("malformed measurement line")

// Record is one parsed log line.
type Record struct {
	Measurement fusion.Measurement
	// GroundTruth is [px, py, vx, vy] when HasTruth is set.
	GroundTruth [groundTruthLen]float64
	HasTruth    bool
}

// Truth returns the ground truth as an Estimate stamped with the
// measurement time.
func (r Record) Truth() fusion.Estimate {
	return fusion.Estimate{
		Timestamp: r.Measurement.Timestamp,
		PX:        r.GroundTruth[0],
		PY:        r.GroundTruth[1],
		VX:        r.GroundTruth[2],
		VY:        r.GroundTruth[3],
	}
}

// ParseLine parses a single log line.
func ParseLine(line string) (Record, error) {
	var rec Record
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return rec, fmt.Errorf("%w: empty", ErrMalformedLine)
	}
	sensor, err := fusion.ParseSensorType(fields[0])
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	dim := sensor.Dim()
	rest := fields[1:]
	if len(rest) != dim+1 && len(rest) != dim+1+groundTruthLen {
		return rec, fmt.Errorf("%w: %v expects %d or %d fields, got %d",
			ErrMalformedLine, sensor, dim+1, dim+1+groundTruthLen, len(rest))
	}

	raw := make([]float64, dim)
	for i := 0; i < dim; i++ {
		if raw[i], err = parseFinite(rest[i]); err != nil {
			return rec, fmt.Errorf("%w: value %d: %v", ErrMalformedLine, i, err)
		}
	}
	ts, err := strconv.ParseInt(rest[dim], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("%w: timestamp: %v", ErrMalformedLine, err)
	}
	rec.Measurement = fusion.Measurement{Sensor: sensor, Raw: raw, Timestamp: ts}

	if gt := rest[dim+1:]; len(gt) == groundTruthLen {
		for i, s := range gt {
			if rec.GroundTruth[i], err = parseFinite(s); err != nil {
				return rec, fmt.Errorf("%w: ground truth %d: %v", ErrMalformedLine, i, err)
			}
		}
		rec.HasTruth = true
	}
	return rec, nil
}

// FormatLine renders rec in the log format, tab separated.
func FormatLine(rec Record) string {
	m := rec.Measurement
	code := "L"
	if m.Sensor == fusion.Radar {
		code = "R"
	}
	fields := make([]string, 0, 2+len(m.Raw)+groundTruthLen)
	fields = append(fields, code)
	for _, v := range m.Raw {
		fields = append(fields, formatFloat(v))
	}
	fields = append(fields, strconv.FormatInt(m.Timestamp, 10))
	if rec.HasTruth {
		for _, v := range rec.GroundTruth {
			fields = append(fields, formatFloat(v))
		}
	}
	return strings.Join(fields, "\t")
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", fusion.ErrInvalidMeasurement, s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Parser loads a whole log file.
type Parser struct {
	Path    string
	Records []Record
}

func NewParser(path string) *Parser {
	return &Parser{Path: path}
}

// Parse reads every record of the file into p.Records.
func (p *Parser) Parse() error {
	f, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := ParseReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", p.Path, err)
	}
	p.Records = recs
	return nil
}

// HasTruth reports whether every record carries ground truth.
func (p *Parser) HasTruth() bool {
	if len(p.Records) == 0 {
		return false
	}
	for _, r := range p.Records {
		if !r.HasTruth {
			return false
		}
	}
	return true
}

// ParseReader parses records from r. Blank lines and lines starting with
// '#' are skipped. Errors carry the 1-based line number.
func ParseReader(r io.Reader) ([]Record, error) {
	var recs []Record
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return recs, nil
}
