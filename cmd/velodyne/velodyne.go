package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/velodyne.report/internal/config"
	"github.com/banshee-data/velodyne.report/internal/lidar"
	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.report/internal/lidar/lidardb"
	"github.com/banshee-data/velodyne.report/internal/lidar/monitor"
	"github.com/banshee-data/velodyne.report/internal/lidar/network"
	"github.com/banshee-data/velodyne.report/internal/lidar/pipeline"
	"github.com/banshee-data/velodyne.report/internal/version"
)

var (
	configFile        = flag.String("config", "", "Path to a .json or .yaml config file (default: built-in defaults)")
	calibrationPath   = flag.String("calibration", "", "Path to the HDL-64E angles calibration file")
	frameID           = flag.String("frame-id", "", "Frame identifier stamped on point batches")
	udpAddress        = flag.String("udp-addr", "", "UDP bind address for sensor packets (default :2368)")
	rcvBuf            = flag.Int("rcvbuf", 0, "UDP receive buffer size in bytes (default 4MB)")
	listen            = flag.String("listen", "", "HTTP listen address (default :8081)")
	dbFile            = flag.String("db", "", "SQLite database for sampled batches (empty disables persistence)")
	recordEvery       = flag.Int("record-every", 0, "Persist one batch in every N (default 100)")
	logInterval       = flag.Duration("log-interval", 0, "Statistics logging interval (default 1m)")
	forwardAddr       = flag.String("forward", "", "Mirror raw packets to this host:port")
	strictCalibration = flag.Bool("strict-calibration", false, "Treat a calibration file with no entries as an error")
	checkCalibration  = flag.Bool("check-calibration", false, "Load the calibration file, report it and exit")
	trace             = flag.Bool("trace", false, "Enable per-packet trace logging to stderr")
	showVersion       = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("velodyne %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	writers := lidar.DefaultLogWriters()
	if *trace {
		writers.Trace = os.Stderr
	}
	lidar.SetLogWriters(writers)

	cfg, err := loadConfig(*configFile, flagOverrides(flag.CommandLine))
	if err != nil {
		fmt.Fprintf(os.Stderr, "velodyne: %v\n", err)
		os.Exit(2)
	}

	if *checkCalibration {
		if err := reportCalibration(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "velodyne: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		lidar.Opsf("exiting: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads path (if any) and overlays the explicitly set flags.
func loadConfig(path string, overrides *config.Config) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// flagOverrides returns a config holding only the flags set on the command
// line, so unset flags never mask config file values.
func flagOverrides(fs *flag.FlagSet) *config.Config {
	o := &config.Config{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "calibration":
			o.CalibrationPath = calibrationPath
		case "frame-id":
			o.FrameID = frameID
		case "udp-addr":
			o.UDPAddress = udpAddress
		case "rcvbuf":
			o.RcvBuf = rcvBuf
		case "listen":
			o.HTTPListen = listen
		case "db":
			o.DBPath = dbFile
		case "record-every":
			o.RecordEvery = recordEvery
		case "log-interval":
			s := logInterval.String()
			o.LogInterval = &s
		case "forward":
			o.ForwardAddress = forwardAddr
		case "strict-calibration":
			o.StrictCalibration = strictCalibration
		}
	})
	return o
}

func calibrationOptions(cfg *config.Config) calibration.LoadOptions {
	return calibration.LoadOptions{RequireEntries: cfg.GetStrictCalibration()}
}

func reportCalibration(cfg *config.Config) error {
	path := cfg.GetCalibrationPath()
	table, err := calibration.LoadWithOptions(path, calibrationOptions(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d of %d lasers calibrated\n", path, table.Populated(), table.Len())
	if missing := table.Missing(); len(missing) > 0 {
		fmt.Printf("missing lasers: %v\n", missing)
	}
	return nil
}

// run wires the decoder and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := lidar.NewPacketStats()
	frame := cfg.GetFrameID()

	// Sinks are appended once the collaborators exist; the pipeline reads
	// the slice through the pointer on every batch.
	var sinks pipeline.MultiBatchSink
	p := pipeline.New(
		pipeline.WithFrameID(frame),
		pipeline.WithBatchSink(&sinks),
		pipeline.WithStats(stats),
	)

	calPath := cfg.GetCalibrationPath()
	if !cfg.HasCalibrationPath() {
		lidar.Opsf("no calibration_path configured, falling back to %s", calPath)
	}
	// Without strict mode a failed load leaves the pipeline uninitialized:
	// packets are still counted and forwarded but not decoded.
	if err := p.LoadCalibration(calPath, calibrationOptions(cfg)); err != nil && cfg.GetStrictCalibration() {
		return err
	}

	var ldb *lidardb.LidarDB
	if dbPath := cfg.GetDBPath(); dbPath != "" {
		var err error
		ldb, err = lidardb.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open lidar database: %w", err)
		}
		defer ldb.Close()

		populated := 0
		if t := p.Table(); t != nil {
			populated = t.Populated()
		}
		sessionID, err := ldb.StartSession(frame, calPath, populated, time.Now())
		if err != nil {
			return err
		}
		defer func() {
			if err := ldb.EndSession(sessionID, time.Now()); err != nil {
				lidar.Opsf("failed to close session %s: %v", sessionID, err)
			}
		}()
		recorder := lidardb.NewBatchRecorder(ldb, sessionID, cfg.GetRecordEvery())
		recorder.Start()
		// Runs before EndSession so queued batches land inside the session.
		defer recorder.Close()
		sinks = append(sinks, recorder)
		lidar.Opsf("recording one batch in %d to %s (session %s)", cfg.GetRecordEvery(), dbPath, sessionID)
	}

	var forwarder *network.PacketForwarder
	if addr := cfg.GetForwardAddress(); addr != "" {
		var err error
		forwarder, err = network.NewPacketForwarder(addr, stats, cfg.GetLogInterval())
		if err != nil {
			return err
		}
		defer forwarder.Close()
	}

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:         cfg.GetHTTPListen(),
		Stats:           stats,
		Pipeline:        p,
		DB:              ldb,
		FrameID:         frame,
		UDPAddress:      cfg.GetUDPAddress(),
		ForwardAddress:  cfg.GetForwardAddress(),
		CalibrationPath: calPath,
	})
	sinks = append(sinks, ws)

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     cfg.GetUDPAddress(),
		RcvBuf:      cfg.GetRcvBuf(),
		LogInterval: cfg.GetLogInterval(),
		Stats:       stats,
		Forwarder:   forwarder,
		Handler:     p,
	})

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		errOnce.Do(func() { firstErr = err })
		cancel()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		fail(listener.Start(ctx))
	}()
	go func() {
		defer wg.Done()
		fail(ws.Start(ctx))
	}()

	lidar.Opsf("velodyne %s running: frame=%s pipeline=%s", version.Version, frame, p.State())
	wg.Wait()

	packets, rejected := p.Counters()
	lidar.Opsf("shut down after %d packets (%d rejected): %s", packets, rejected, lidar.FormatSnapshot(stats.GetAndReset()))
	return firstErr
}
