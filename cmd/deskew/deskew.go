// Command deskew replays a recorded sensor log through the motion
// compensation pipeline and writes the resulting clouds and per-sweep reports.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/deskew/internal/config"
	"github.com/banshee-data/deskew/internal/deskew"
	"github.com/banshee-data/deskew/internal/monitoring"
	"github.com/banshee-data/deskew/internal/replay"
	"github.com/banshee-data/deskew/internal/runlog"
	"github.com/banshee-data/deskew/internal/version"
)

var (
	showVersion   = flag.Bool("version", false, "Print version and exit")
	configPath    = flag.String("config", "", "Path to JSON config file (defaults apply when empty)")
	inputPath     = flag.String("input", "", "Sensor log to replay (required)")
	replayRate    = flag.Float64("rate", 0, "Replay rate: 1.0 = real time, 0 = as fast as possible")
	outputPath    = flag.String("out", "", "Write result clouds as JSON lines to this file (default: log summaries only)")
	dbFile        = flag.String("db", "", "Path to the SQLite run log (overrides config; \"off\" disables)")
	statsInterval = flag.Int("stats-interval", 5, "Statistics logging interval in seconds")
)

// cloudWriter publishes result clouds as JSON lines.
type cloudWriter struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

func newCloudWriter(path string) (*cloudWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	return &cloudWriter{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (c *cloudWriter) Publish(r deskew.CloudResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(struct {
		SweepID   string              `json:"sweep_id"`
		Timestamp float64             `json:"ts"`
		FrameID   string              `json:"frame_id"`
		Kind      deskew.CloudKind    `json:"kind"`
		Points    []deskew.WorldPoint `json:"points"`
	}{r.SweepID.String(), r.Timestamp, r.FrameID, r.Kind, r.Points}); err != nil {
		monitoring.Logf("failed to write cloud %s: %v", r.SweepID, err)
	}
}

func (c *cloudWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// logPublisher logs a one-line summary per cloud.
type logPublisher struct{}

func (logPublisher) Publish(r deskew.CloudResult) {
	monitoring.Logf("published %s cloud for sweep %s: %d points in frame %s",
		r.Kind, r.SweepID, len(r.Points), r.FrameID)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *inputPath == "" {
		log.Fatal("-input is required")
	}

	log.Printf("Starting %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbFile != "" {
		cfg.RunLogPath = *dbFile
		if *dbFile == "off" {
			cfg.RunLogPath = ""
		}
	}

	pc, err := cfg.PipelineConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *outputPath != "" {
		cw, err := newCloudWriter(*outputPath)
		if err != nil {
			log.Fatalf("Failed to open output: %v", err)
		}
		defer func() {
			if err := cw.Close(); err != nil {
				log.Printf("Failed to close output: %v", err)
			}
		}()
		pc.Publisher = cw
	} else {
		pc.Publisher = logPublisher{}
	}

	if cfg.RunLogPath != "" {
		store, err := runlog.Open(cfg.RunLogPath)
		if err != nil {
			log.Fatalf("Failed to open run log: %v", err)
		}
		defer store.Close()
		pc.Reporter = store
	}

	pl := deskew.NewPipeline(pc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	runCtx, cancelRun := context.WithCancel(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pl.Run(runCtx)
		log.Print("Processing loop terminated")
	}()

	// Periodic statistics logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s := pl.Stats()
				monitoring.Logf("stats: processed=%d evicted=%d stale=%d sparse=%d faulty=%d degraded_points=%d",
					s.SweepsProcessed, s.SweepsEvicted, s.PairsDroppedStale,
					s.SweepsSkippedSparse, s.SweepsSkippedFaulty, s.PointsDegraded)
			}
		}
	}()

	log.Printf("Replaying %s (rate %.2g)", *inputPath, *replayRate)
	player := replay.NewPlayer(*inputPath, *replayRate)
	if err := player.Play(ctx, pl); err != nil && err != context.Canceled {
		log.Printf("Replay error: %v", err)
	}

	// Drain whatever the replay left paired before shutting down.
	if ctx.Err() == nil {
		for pl.ProcessOne() {
		}
	}
	cancelRun()
	wg.Wait()

	s := pl.Stats()
	log.Printf("Done: %d sweeps deskewed, %d skipped (sparse %d, faulty %d), %d stale pairs dropped",
		s.SweepsProcessed, s.SweepsSkippedSparse+s.SweepsSkippedFaulty,
		s.SweepsSkippedSparse, s.SweepsSkippedFaulty, s.PairsDroppedStale)
}
