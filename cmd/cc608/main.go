// Command cc608 decodes CEA-608 closed captions from SCC files, MPEG-TS
// files carrying A/53 caption SEI, or live MPEG-TS received over SRT,
// and prints the caption display after every cue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/encoding"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/config"
	"github.com/zsiec/cc608/internal/ingest/srt"
	"github.com/zsiec/cc608/internal/metrics"
	"github.com/zsiec/cc608/internal/output"
)

var version = "dev"

const usage = `Usage:
  cc608 [flags] FILE...       decode SCC or MPEG-TS files (.zst and .gz accepted)
  cc608 -srt :6000 [flags]    decode live MPEG-TS published over SRT

Flags:
`

// options are the command-line settings that are not part of Config.
type options struct {
	dumpSCC bool
	version bool
	files   []string
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, opts, err := parseArgs(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Println("cc608", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	a, err := newApp(cfg, slog.Default())
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if cfg.SRT.Live() {
		slog.Info("cc608 starting", "version", version, "mode", "live",
			"srt", cfg.SRT.Listen, "pulls", len(cfg.SRT.Pull), "http", cfg.HTTPAddr)
		err = a.runLive(ctx, os.Stdout)
	} else {
		err = a.runFiles(ctx, opts.files, opts.dumpSCC, os.Stdout)
	}
	a.logSummary()
	if err != nil {
		slog.Error("decode failed", "error", err)
		os.Exit(1)
	}
}

// parseArgs layers the configuration: defaults, then the -config file,
// then CC608_* variables, then flags given on the command line.
func parseArgs(args []string, getenv func(string) string, stderr io.Writer) (config.Config, options, error) {
	var (
		opts       options
		configPath string
		cfg        = config.Default()
		pull       srt.PullRequest
		latencyMs  int
		qos        uint
	)

	fs := flag.NewFlagSet("cc608", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&configPath, "config", getenv("CC608_CONFIG"), "YAML configuration file (CC608_CONFIG)")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format: text, json or moq (CC608_FORMAT)")
	fs.StringVar(&cfg.Encoding, "encoding", cfg.Encoding, "text output encoding: utf-8, latin1, windows-1252, cp437 (CC608_ENCODING)")
	fs.BoolVar(&cfg.Changes, "changes", cfg.Changes, "only print snapshots whose text changed (CC608_CHANGES)")
	fs.IntVar(&cfg.Field, "field", cfg.Field, "A/53 caption field of MPEG-TS input: 1 (CC1/CC2) or 2 (CC3/CC4) (CC608_FIELD)")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "abort on the first unsupported feature or character (CC608_STRICT)")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "live mode: serve /metrics, /ws and /api/streams on this address (CC608_HTTP_ADDR)")
	fs.StringVar(&cfg.SRT.Listen, "srt", cfg.SRT.Listen, "accept SRT publishers on this address (CC608_SRT_ADDR)")
	fs.IntVar(&latencyMs, "srt-latency", cfg.SRT.LatencyMs, "SRT latency in milliseconds")
	fs.StringVar(&pull.Address, "srt-pull", "", "pull live MPEG-TS from this SRT listener")
	fs.StringVar(&pull.StreamID, "srt-streamid", "", "stream ID sent with -srt-pull")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt", cfg.MQTT.Broker, "publish snapshots to this MQTT broker (CC608_MQTT_BROKER)")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt-topic", cfg.MQTT.Topic, "MQTT topic prefix (CC608_MQTT_TOPIC)")
	fs.UintVar(&qos, "mqtt-qos", uint(cfg.MQTT.QoS), "MQTT quality of service")
	fs.BoolVar(&opts.dumpSCC, "dump-scc", false, "write the input cues as SCC instead of decoding")
	fs.BoolVar(&opts.version, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return cfg, opts, err
	}
	opts.files = fs.Args()

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	flagCfg := cfg
	cfg = config.Default()
	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return cfg, opts, err
		}
		cfg = fileCfg
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, opts, err
	}
	overlayFlags(&cfg, flagCfg, set)
	if set["srt-latency"] {
		cfg.SRT.LatencyMs = latencyMs
	}
	if set["mqtt-qos"] {
		if qos > 2 {
			return cfg, opts, fmt.Errorf("%w: -mqtt-qos must be 0, 1 or 2", config.ErrInvalid)
		}
		cfg.MQTT.QoS = byte(qos)
	}
	if pull.Address != "" {
		cfg.SRT.Pull = append(cfg.SRT.Pull, pull)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, opts, err
	}
	if !cfg.SRT.Live() && len(opts.files) == 0 && !opts.version {
		fs.Usage()
		return cfg, opts, errors.New("no input files")
	}
	if opts.dumpSCC && cfg.SRT.Live() {
		return cfg, opts, errors.New("-dump-scc reads files only")
	}
	return cfg, opts, nil
}

// overlayFlags copies the settings of explicitly given flags from
// flagCfg into cfg.
func overlayFlags(cfg *config.Config, flagCfg config.Config, set map[string]bool) {
	if set["format"] {
		cfg.Format = flagCfg.Format
	}
	if set["encoding"] {
		cfg.Encoding = flagCfg.Encoding
	}
	if set["changes"] {
		cfg.Changes = flagCfg.Changes
	}
	if set["field"] {
		cfg.Field = flagCfg.Field
	}
	if set["strict"] {
		cfg.Strict = flagCfg.Strict
	}
	if set["http"] {
		cfg.HTTPAddr = flagCfg.HTTPAddr
	}
	if set["srt"] {
		cfg.SRT.Listen = flagCfg.SRT.Listen
	}
	if set["mqtt"] {
		cfg.MQTT.Broker = flagCfg.MQTT.Broker
	}
	if set["mqtt-topic"] {
		cfg.MQTT.Topic = flagCfg.MQTT.Topic
	}
}

// app holds the process-wide components shared by every decode session.
type app struct {
	log     *slog.Logger
	cfg     config.Config
	format  output.Format
	enc     encoding.Encoding
	metrics *metrics.Metrics
	hub     *output.Hub
	mqtt    output.Publisher
	closers []func()
}

func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	enc, err := output.ParseEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	a := &app{
		log:     log,
		cfg:     cfg,
		format:  format,
		enc:     enc,
		metrics: metrics.New(),
	}
	if cfg.HTTPAddr != "" && cfg.SRT.Live() {
		a.hub = output.NewHub(log)
		a.metrics.ObserveViewers(a.hub.Viewers)
		a.closers = append(a.closers, func() { a.hub.Close() })
	}
	if cfg.MQTT.Broker != "" {
		client, err := output.DialMQTT(cfg.MQTT.Broker, log)
		if err != nil {
			return nil, err
		}
		a.mqtt = client
		a.closers = append(a.closers, func() { client.Disconnect(250) })
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// diagnostics counts every diagnostic, logs it and, in strict mode,
// aborts on unsupported features and characters.
func (a *app) diagnostics() cea608.DiagnosticHandler {
	logDiag := cea608.LogDiagnostics(a.log.With("component", "cea608"))
	strict := a.cfg.Strict
	return a.metrics.Diagnostics(func(d *cea608.Diagnostic) error {
		_ = logDiag(d)
		if strict && (d.Category == cea608.CategoryUnsupportedFeature || d.Category == cea608.CategoryUnsupportedCharacter) {
			return d
		}
		return nil
	})
}

// sink wraps primary with the live fan-out sinks and the change filter.
func (a *app) sink(primary output.Sink, source string) output.Sink {
	sinks := []output.Sink{primary}
	if a.hub != nil {
		sinks = append(sinks, a.hub.Sink(source))
	}
	if a.mqtt != nil {
		sinks = append(sinks, output.NewMQTTSink(a.mqtt, a.cfg.MQTT.Topic, a.cfg.MQTT.QoS, source))
	}
	s := primary
	if len(sinks) > 1 {
		s = output.Tee(sinks...)
	}
	if a.cfg.Changes {
		s = output.ChangesOnly(s)
	}
	return s
}

func (a *app) logSummary() {
	totals, err := a.metrics.Totals()
	if err != nil {
		a.log.Debug("gathering metrics", "error", err)
		return
	}
	attrs := make([]any, 0, 2*len(totals))
	for _, name := range []string{
		"cc608_cues_total",
		"cc608_snapshots_total",
		"cc608_diagnostics_total",
		"cc608_ts_access_units_total",
		"cc608_ts_caption_pairs_total",
	} {
		attrs = append(attrs, name, int64(totals[name]))
	}
	a.log.Info("summary", attrs...)
}

const shutdownTimeout = 5 * time.Second
