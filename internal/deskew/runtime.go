package deskew

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/geom"
	"github.com/banshee-data/deskew/internal/monitoring"
)

// DefaultPollInterval is how long the processing loop sleeps when the gate
// reports not-ready.
const DefaultPollInterval = 50 * time.Millisecond

// SweepReport summarizes the handling of one dequeued sweep, for logging and
// persistence.
type SweepReport struct {
	SweepID        uuid.UUID
	Outcome        string // "deskewed", "skipped-sparse", "skipped-faulty"
	PoseTimestamp  float64
	SweepStart     float64
	SweepEnd       float64
	PointCount     int
	InertialCount  int
	InertialStart  float64
	InertialEnd    float64
	DegradedPoints int64
	QueueDepth     int
	InertialDepth  int
}

// Reporter persists per-sweep reports. A nil Reporter disables persistence.
type Reporter interface {
	ReportSweep(SweepReport) error
}

// PipelineConfig contains the startup constants for a Pipeline. None of them
// are reloadable.
type PipelineConfig struct {
	Extrinsic geom.Rigid // ranging sensor frame -> body frame

	Gravity   r3.Vec
	GyroBias  r3.Vec
	AccelBias r3.Vec

	ReadinessMargin    float64       // seconds; <=0 uses DefaultReadinessMargin
	MinInertialSamples int           // <=0 uses DefaultMinInertialSamples
	InitialSkip        int           // <0 uses DefaultInitialSkip
	PollInterval       time.Duration // <=0 uses DefaultPollInterval
	Workers            int           // per-point workers; <=0 uses GOMAXPROCS
	QueueCapacity      int           // pairing queue bound; <=0 uses default

	WorldFrameID    string // frame tag on distorted clouds (default "world")
	DeskewedFrameID string // frame tag on deskewed clouds (default "world_shifted")

	Publisher Publisher // receives result clouds; nil discards them
	Reporter  Reporter  // persists per-sweep reports; nil disables
}

// Pipeline is the synchronization-and-motion-compensation pipeline: stream
// buffers, pairer, readiness gate and the single consumer loop that drives
// extraction, propagation and per-point deskewing.
type Pipeline struct {
	inertial *InertialBuffer
	slot     *SweepSlot
	queue    *PairQueue
	pairer   *Pairer
	gate     *Gate

	propagator *Propagator
	deskewer   *Deskewer

	minInertialSamples int
	pollInterval       time.Duration
	worldFrame         string
	deskewedFrame      string

	publisher Publisher
	reporter  Reporter
	stats     *Stats
	throttle  *monitoring.Throttle
}

type discardPublisher struct{}

func (discardPublisher) Publish(CloudResult) {}

// NewPipeline wires a Pipeline from its configuration.
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.MinInertialSamples <= 0 {
		config.MinInertialSamples = DefaultMinInertialSamples
	}
	if config.InitialSkip < 0 {
		config.InitialSkip = DefaultInitialSkip
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.WorldFrameID == "" {
		config.WorldFrameID = "world"
	}
	if config.DeskewedFrameID == "" {
		config.DeskewedFrameID = "world_shifted"
	}
	if config.Publisher == nil {
		config.Publisher = discardPublisher{}
	}

	stats := &Stats{}
	throttle := monitoring.NewThrottle(time.Second)
	inertial := NewInertialBuffer()
	slot := NewSweepSlot()
	queue := NewPairQueue(config.QueueCapacity)

	return &Pipeline{
		inertial: inertial,
		slot:     slot,
		queue:    queue,
		pairer: NewPairer(PairerConfig{
			Slot:        slot,
			Queue:       queue,
			Stats:       stats,
			InitialSkip: config.InitialSkip,
		}),
		gate: NewGate(GateConfig{
			Queue:    queue,
			Inertial: inertial,
			Margin:   config.ReadinessMargin,
			Stats:    stats,
			Throttle: throttle,
		}),
		propagator:         NewPropagator(config.Gravity, config.GyroBias, config.AccelBias),
		deskewer:           NewDeskewer(config.Extrinsic, config.Workers),
		minInertialSamples: config.MinInertialSamples,
		pollInterval:       config.PollInterval,
		worldFrame:         config.WorldFrameID,
		deskewedFrame:      config.DeskewedFrameID,
		publisher:          config.Publisher,
		reporter:           config.Reporter,
		stats:              stats,
		throttle:           throttle,
	}
}

// HandleInertial ingests one inertial sample. Safe to call concurrently with
// the other ingestion paths and the processing loop.
func (pl *Pipeline) HandleInertial(s InertialSample) {
	pl.inertial.Push(s)
}

// HandlePose ingests one pose/velocity estimate.
func (pl *Pipeline) HandlePose(s PoseSample) {
	pl.pairer.HandlePose(s)
}

// HandleSweep stages one ranging sweep.
func (pl *Pipeline) HandleSweep(sw *Sweep) {
	pl.pairer.HandleSweep(sw)
}

// Stats returns a snapshot of the pipeline counters.
func (pl *Pipeline) Stats() StatsSnapshot {
	return pl.stats.Snapshot()
}

// Run is the consumer loop. It polls the readiness gate, processes ready
// pairs to completion, and returns only when ctx is cancelled. Recoverable
// conditions are handled in place and never escape.
func (pl *Pipeline) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		switch pl.gate.Check() {
		case Ready:
			if item, ok := pl.queue.PopFront(); ok {
				pl.process(item)
			}
		case StaleDropped:
			// Front pair was discarded; re-check immediately.
		case NotReady:
			pl.throttle.Logf("waiting for data")
			select {
			case <-ctx.Done():
				return
			case <-time.After(pl.pollInterval):
			}
		}
	}
}

// ProcessOne runs a single gate check and, if ready, processes the front
// pair. It reports whether a sweep was processed. Intended for tests and
// offline (replay) driving of the pipeline.
func (pl *Pipeline) ProcessOne() bool {
	if pl.gate.Check() != Ready {
		return false
	}
	item, ok := pl.queue.PopFront()
	if !ok {
		return false
	}
	pl.process(item)
	return true
}

// process drives extraction, propagation and deskewing for one paired item.
// The propagation window starts at the paired pose's timestamp (at or before
// the sweep start) so the initial state is anchored at a measured estimate.
func (pl *Pipeline) process(item PairedItem) {
	sw := item.Sweep
	tstart := item.Pose.Timestamp
	tend := sw.EndTime()

	report := SweepReport{
		SweepID:       sw.ID,
		PoseTimestamp: item.Pose.Timestamp,
		SweepStart:    sw.StartTimestamp,
		SweepEnd:      tend,
		PointCount:    len(sw.Points),
	}

	// Samples before the window can no longer matter: every later sweep
	// starts no earlier than this one.
	pl.inertial.PruneBefore(tstart)
	seq := pl.inertial.Window(tend)
	if len(seq) > 0 {
		report.InertialStart = seq[0].Timestamp
		report.InertialEnd = seq[len(seq)-1].Timestamp
	}
	report.InertialCount = len(seq)
	report.QueueDepth = pl.queue.Len()
	report.InertialDepth = pl.inertial.Len()

	window, err := ExtractWindow(seq, tstart, tend, pl.minInertialSamples)
	if err != nil {
		pl.skip(report, err)
		return
	}

	traj, err := pl.propagator.Propagate(item.Pose, window)
	if err != nil {
		pl.skip(report, err)
		return
	}

	distorted := pl.deskewer.DistortedCloud(sw, item.Pose)
	pl.publisher.Publish(CloudResult{
		SweepID:   sw.ID,
		Timestamp: sw.StartTimestamp,
		FrameID:   pl.worldFrame,
		Kind:      CloudDistorted,
		Points:    distorted,
	})

	deskewed, degraded := pl.deskewer.Deskew(sw, item.Pose, traj)
	pl.publisher.Publish(CloudResult{
		SweepID:   sw.ID,
		Timestamp: sw.StartTimestamp,
		FrameID:   pl.deskewedFrame,
		Kind:      CloudDeskewed,
		Points:    deskewed,
	})

	pl.stats.addProcessed()
	pl.stats.addDegradedPoints(degraded)
	report.Outcome = "deskewed"
	report.DegradedPoints = degraded

	monitoring.Logf("sweep %s: pose %.3f, cloud %.3f -> %.3f, inertial %d samples %.3f -> %.3f, points %d (%d degraded), queue %d, buffer %d",
		sw.ID, report.PoseTimestamp, report.SweepStart, report.SweepEnd,
		report.InertialCount, report.InertialStart, report.InertialEnd,
		report.PointCount, degraded, report.QueueDepth, report.InertialDepth)

	pl.record(report)
}

// skip logs and records a recoverable per-sweep failure.
func (pl *Pipeline) skip(report SweepReport, err error) {
	if errors.Is(err, ErrInsufficientInertial) {
		pl.stats.addSkippedSparse()
		report.Outcome = "skipped-sparse"
	} else {
		pl.stats.addSkippedFaulty()
		report.Outcome = "skipped-faulty"
	}
	monitoring.Logf("skipping sweep %s (start %.3f): %v", report.SweepID, report.SweepStart, err)
	pl.record(report)
}

func (pl *Pipeline) record(report SweepReport) {
	if pl.reporter == nil {
		return
	}
	if err := pl.reporter.ReportSweep(report); err != nil {
		monitoring.Logf("recording sweep report %s: %v", report.SweepID, err)
	}
}
