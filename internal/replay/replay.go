// Package replay provides recording and playback of the three sensor streams
// as JSON-lines logs, so a capture can be re-run through the pipeline offline.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/deskew"
)

// FileExtension is the extension for deskew sensor logs.
const FileExtension = ".dslog"

// Record kinds, one per sensor stream.
const (
	KindInertial = "inertial"
	KindPose     = "pose"
	KindSweep    = "sweep"
)

// record is the JSONL wire schema. Exactly one of the payload fields is set,
// selected by Kind.
type record struct {
	Kind      string  `json:"kind"`
	Timestamp float64 `json:"ts"`

	Gyro  *[3]float64 `json:"gyro,omitempty"`
	Accel *[3]float64 `json:"accel,omitempty"`

	Orientation  *[4]float64 `json:"orientation,omitempty"` // w, x, y, z
	Position     *[3]float64 `json:"position,omitempty"`
	BodyVelocity *[3]float64 `json:"body_velocity,omitempty"`

	SweepID string        `json:"sweep_id,omitempty"`
	Points  []recordPoint `json:"points,omitempty"`
}

type recordPoint struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	OffsetNanos  int64   `json:"t_ns"`
	Intensity    float32 `json:"intensity,omitempty"`
	Reflectivity uint16  `json:"reflectivity,omitempty"`
}

// Sink receives replayed records. *deskew.Pipeline satisfies it.
type Sink interface {
	HandleInertial(deskew.InertialSample)
	HandlePose(deskew.PoseSample)
	HandleSweep(*deskew.Sweep)
}

// Recorder appends sensor records to a JSONL log file.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	count  uint64
	closed bool
}

// NewRecorder creates a log file at path, truncating any existing file.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating sensor log %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	return &Recorder{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// RecordInertial appends one inertial sample.
func (r *Recorder) RecordInertial(s deskew.InertialSample) error {
	return r.write(record{
		Kind:      KindInertial,
		Timestamp: s.Timestamp,
		Gyro:      &[3]float64{s.AngularVelocity.X, s.AngularVelocity.Y, s.AngularVelocity.Z},
		Accel:     &[3]float64{s.LinearAcceleration.X, s.LinearAcceleration.Y, s.LinearAcceleration.Z},
	})
}

// RecordPose appends one pose sample.
func (r *Recorder) RecordPose(s deskew.PoseSample) error {
	return r.write(record{
		Kind:         KindPose,
		Timestamp:    s.Timestamp,
		Orientation:  &[4]float64{s.Orientation.Real, s.Orientation.Imag, s.Orientation.Jmag, s.Orientation.Kmag},
		Position:     &[3]float64{s.Position.X, s.Position.Y, s.Position.Z},
		BodyVelocity: &[3]float64{s.BodyVelocity.X, s.BodyVelocity.Y, s.BodyVelocity.Z},
	})
}

// RecordSweep appends one sweep.
func (r *Recorder) RecordSweep(sw *deskew.Sweep) error {
	rec := record{
		Kind:      KindSweep,
		Timestamp: sw.StartTimestamp,
		SweepID:   sw.ID.String(),
		Points:    make([]recordPoint, len(sw.Points)),
	}
	for i, p := range sw.Points {
		rec.Points[i] = recordPoint{
			X: p.X, Y: p.Y, Z: p.Z,
			OffsetNanos:  p.TimeOffsetNanos,
			Intensity:    p.Intensity,
			Reflectivity: p.Reflectivity,
		}
	}
	return r.write(rec)
}

func (r *Recorder) write(rec record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("writing sensor record: %w", err)
	}
	r.count++
	return nil
}

// RecordCount returns the number of records written.
func (r *Recorder) RecordCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close flushes and closes the log file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return fmt.Errorf("flushing sensor log: %w", err)
	}
	return r.f.Close()
}

// Player reads a JSONL log and feeds its records to a Sink in file order.
type Player struct {
	path string
	rate float64
}

// NewPlayer opens a log for playback. rate scales the inter-record delays;
// rate <= 0 replays as fast as possible.
func NewPlayer(path string, rate float64) *Player {
	return &Player{path: path, rate: rate}
}

// Play streams every record to sink, pacing by recorded timestamps when a
// positive rate is set. It stops early when ctx is cancelled.
func (p *Player) Play(ctx context.Context, sink Sink) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("opening sensor log %s: %w", p.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	// Sweep records carry thousands of points on one line.
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)

	var prevTS float64
	havePrev := false
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("parsing sensor log line %d: %w", line, err)
		}

		if p.rate > 0 && havePrev && rec.Timestamp > prevTS {
			delay := time.Duration((rec.Timestamp - prevTS) / p.rate * float64(time.Second))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		prevTS = rec.Timestamp
		havePrev = true

		if err := dispatch(rec, sink); err != nil {
			return fmt.Errorf("sensor log line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading sensor log: %w", err)
	}
	return nil
}

func dispatch(rec record, sink Sink) error {
	switch rec.Kind {
	case KindInertial:
		s := deskew.InertialSample{Timestamp: rec.Timestamp}
		if rec.Gyro != nil {
			s.AngularVelocity = r3.Vec{X: rec.Gyro[0], Y: rec.Gyro[1], Z: rec.Gyro[2]}
		}
		if rec.Accel != nil {
			s.LinearAcceleration = r3.Vec{X: rec.Accel[0], Y: rec.Accel[1], Z: rec.Accel[2]}
		}
		sink.HandleInertial(s)

	case KindPose:
		s := deskew.PoseSample{Timestamp: rec.Timestamp}
		if rec.Orientation != nil {
			s.Orientation = quat.Number{
				Real: rec.Orientation[0],
				Imag: rec.Orientation[1],
				Jmag: rec.Orientation[2],
				Kmag: rec.Orientation[3],
			}
		}
		if rec.Position != nil {
			s.Position = r3.Vec{X: rec.Position[0], Y: rec.Position[1], Z: rec.Position[2]}
		}
		if rec.BodyVelocity != nil {
			s.BodyVelocity = r3.Vec{X: rec.BodyVelocity[0], Y: rec.BodyVelocity[1], Z: rec.BodyVelocity[2]}
		}
		sink.HandlePose(s)

	case KindSweep:
		sw := &deskew.Sweep{StartTimestamp: rec.Timestamp}
		if rec.SweepID != "" {
			id, err := uuid.Parse(rec.SweepID)
			if err != nil {
				return fmt.Errorf("parsing sweep id %q: %w", rec.SweepID, err)
			}
			sw.ID = id
		}
		sw.Points = make([]deskew.Point, len(rec.Points))
		for i, p := range rec.Points {
			sw.Points[i] = deskew.Point{
				X: p.X, Y: p.Y, Z: p.Z,
				TimeOffsetNanos: p.OffsetNanos,
				Intensity:       p.Intensity,
				Reflectivity:    p.Reflectivity,
			}
		}
		sink.HandleSweep(sw)

	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	return nil
}
