package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/deskew"
)

// captureSink records everything it receives, in order.
type captureSink struct {
	inertial []deskew.InertialSample
	poses    []deskew.PoseSample
	sweeps   []*deskew.Sweep
	order    []string
}

func (s *captureSink) HandleInertial(v deskew.InertialSample) {
	s.inertial = append(s.inertial, v)
	s.order = append(s.order, KindInertial)
}

func (s *captureSink) HandlePose(v deskew.PoseSample) {
	s.poses = append(s.poses, v)
	s.order = append(s.order, KindPose)
}

func (s *captureSink) HandleSweep(v *deskew.Sweep) {
	s.sweeps = append(s.sweeps, v)
	s.order = append(s.order, KindSweep)
}

func TestRecordAndPlayRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture"+FileExtension)
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	inertial := deskew.InertialSample{
		Timestamp:          1.0,
		AngularVelocity:    r3.Vec{X: 0.01, Y: -0.02, Z: 0.1},
		LinearAcceleration: r3.Vec{X: 0.1, Z: 9.82},
	}
	pose := deskew.PoseSample{
		Timestamp:    1.01,
		Orientation:  quat.Number{Real: 1},
		Position:     r3.Vec{X: 2, Y: 3, Z: 4},
		BodyVelocity: r3.Vec{X: 0.5},
	}
	sweep := &deskew.Sweep{
		ID:             uuid.New(),
		StartTimestamp: 1.02,
		Points: []deskew.Point{
			{X: 1, Y: 2, Z: 3, TimeOffsetNanos: 0, Intensity: 0.5, Reflectivity: 7},
			{X: 4, Y: 5, Z: 6, TimeOffsetNanos: 50_000_000, Intensity: 0.25, Reflectivity: 9},
		},
	}

	require.NoError(t, rec.RecordInertial(inertial))
	require.NoError(t, rec.RecordPose(pose))
	require.NoError(t, rec.RecordSweep(sweep))
	assert.Equal(t, uint64(3), rec.RecordCount())
	require.NoError(t, rec.Close())

	sink := &captureSink{}
	require.NoError(t, NewPlayer(path, 0).Play(context.Background(), sink))

	assert.Equal(t, []string{KindInertial, KindPose, KindSweep}, sink.order)
	require.Len(t, sink.inertial, 1)
	assert.Equal(t, inertial, sink.inertial[0])
	require.Len(t, sink.poses, 1)
	assert.Equal(t, pose, sink.poses[0])
	require.Len(t, sink.sweeps, 1)
	assert.Equal(t, sweep.ID, sink.sweeps[0].ID)
	assert.Equal(t, sweep.StartTimestamp, sink.sweeps[0].StartTimestamp)
	assert.Equal(t, sweep.Points, sink.sweeps[0].Points)
}

func TestRecorderRejectsWritesAfterClose(t *testing.T) {
	t.Parallel()

	rec, err := NewRecorder(filepath.Join(t.TempDir(), "c"+FileExtension))
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	assert.Error(t, rec.RecordInertial(deskew.InertialSample{}))
	// Closing twice is harmless.
	assert.NoError(t, rec.Close())
}

func TestPlayerRejectsMalformedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	badJSON := filepath.Join(dir, "bad"+FileExtension)
	writeLines(t, badJSON, "{not json")
	err := NewPlayer(badJSON, 0).Play(context.Background(), &captureSink{})
	assert.ErrorContains(t, err, "line 1")

	badKind := filepath.Join(dir, "kind"+FileExtension)
	writeLines(t, badKind, `{"kind":"barometer","ts":1}`)
	err = NewPlayer(badKind, 0).Play(context.Background(), &captureSink{})
	assert.ErrorContains(t, err, "unknown record kind")
}

func TestPlayerMissingFile(t *testing.T) {
	t.Parallel()

	err := NewPlayer(filepath.Join(t.TempDir(), "nope"+FileExtension), 0).Play(context.Background(), &captureSink{})
	assert.Error(t, err)
}

func TestPlayerSkipsBlankLinesAndFeedsPipeline(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed"+FileExtension)
	writeLines(t, path,
		`{"kind":"inertial","ts":1.0,"gyro":[0,0,0],"accel":[0,0,9.82]}`,
		``,
		`{"kind":"pose","ts":1.1,"orientation":[1,0,0,0]}`,
	)

	sink := &captureSink{}
	require.NoError(t, NewPlayer(path, 0).Play(context.Background(), sink))
	assert.Len(t, sink.inertial, 1)
	assert.Len(t, sink.poses, 1)
}

func TestPlayerHonorsCancellation(t *testing.T) {
	t.Parallel()

	// Two records a full minute apart: at rate 1 the delay would dominate the
	// test, so cancellation must cut it short.
	path := filepath.Join(t.TempDir(), "slow"+FileExtension)
	writeLines(t, path,
		`{"kind":"pose","ts":0,"orientation":[1,0,0,0]}`,
		`{"kind":"pose","ts":60,"orientation":[1,0,0,0]}`,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewPlayer(path, 1.0).Play(ctx, &captureSink{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	var body string
	for _, l := range lines {
		body += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}
