// Command resonanced is the CLI driver wiring the fingerprint store,
// metadata store, registrar, matcher, and stream recognizer described
// by the configuration file, adapted from the teacher's flat flag-based
// cmd/main.go to the registrar/recognizer verb set this module adds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/audio"
	"github.com/media-luna/resonance/internal/config"
	"github.com/media-luna/resonance/internal/eventsink"
	"github.com/media-luna/resonance/internal/logging"
	"github.com/media-luna/resonance/internal/matcher"
	"github.com/media-luna/resonance/internal/metadata"
	"github.com/media-luna/resonance/internal/model"
	"github.com/media-luna/resonance/internal/mqttsink"
	"github.com/media-luna/resonance/internal/recognizer"
	"github.com/media-luna/resonance/internal/registrar"
	"github.com/media-luna/resonance/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")

	registerYAML := flag.String("register", "", "Path to a reference YAML file to register")
	registerDir := flag.String("register-dir", "", "Directory of reference YAML files to register")
	registerDirByClass := flag.String("register-dir-by-class", "", "Directory of class subdirectories to register")
	recursive := flag.Bool("recursive", false, "Recurse into subdirectories for -register-dir")

	generateOut := flag.String("generate", "", "Write a fingerprint file for -source to this path")
	generateSource := flag.String("source", "", "Source audio file for -generate")
	generateName := flag.String("name", "", "Reference name for -generate")
	generateDir := flag.String("generate-dir", "", "Directory of reference YAML files to regenerate fingerprint files for")

	importFile := flag.String("import", "", "Path to a fingerprint file to import")
	importDir := flag.String("import-dir", "", "Directory of fingerprint files to import")
	force := flag.Bool("force", false, "Re-import over an existing reference whose digest differs on -import/-import-dir")

	exportName := flag.String("export", "", "Reference name to export as a fingerprint file")
	exportOut := flag.String("export-out", "", "Output path for -export")

	recognizeFile := flag.String("recognize", "", "Path to an audio file to recognize")
	microphoneCmd := flag.Bool("microphone", false, "Start streaming recognition from the microphone")

	listCmd := flag.Bool("list", false, "List all registered references")
	deleteName := flag.String("delete", "", "Delete a reference by name")
	cleanupCmd := flag.Bool("cleanup", false, "Remove references that never finished fingerprinting")
	queryField := flag.String("query-metadata", "", "Query metadata by dot path, formatted field=value")

	initConfigType := flag.String("init-config", "", "Write a config template for the given database type (memory, postgresql, mysql)")
	initConfigOut := flag.String("init-config-out", "configs/config.yaml", "Output path for -init-config")

	flag.Parse()

	if *initConfigType != "" {
		if err := config.WriteTemplate(*initConfigOut, *initConfigType); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("wrote config template to %s\n", *initConfigOut)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Options{Level: cfg.LogLevel, LogFile: cfg.LogFile}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	app, err := newApp(cfg)
	if err != nil {
		logging.Error(apperr.Wrap(err, "initializing application"))
		os.Exit(1)
	}
	defer app.Close()

	ctx := context.Background()

	switch {
	case *registerYAML != "":
		name, err := app.registrar.RegisterFromYAML(ctx, *registerYAML)
		exitOnErr(err, "registering reference")
		logging.Info("registered reference", zap.String("name", name))

	case *registerDir != "":
		summary := app.registrar.RegisterDirectory(ctx, *registerDir, *recursive)
		printSummary(summary)

	case *registerDirByClass != "":
		summary := app.registrar.RegisterDirectoryByClass(ctx, *registerDirByClass)
		printSummary(summary)

	case *generateOut != "":
		if *generateSource == "" || *generateName == "" {
			fmt.Fprintln(os.Stderr, "-generate requires -source and -name")
			os.Exit(1)
		}
		wrote, err := app.registrar.GenerateFingerprintFile(*generateSource, *generateOut, *generateName, nil, nil)
		exitOnErr(err, "generating fingerprint file")
		if wrote {
			logging.Info("wrote fingerprint file", zap.String("path", *generateOut))
		} else {
			logging.Info("fingerprint file already up to date", zap.String("path", *generateOut))
		}

	case *generateDir != "":
		summary := app.registrar.GenerateDirectory(*generateDir)
		printSummary(summary)

	case *importFile != "":
		err := app.registrar.RegisterFromFingerprintFile(ctx, *importFile, *force)
		exitOnErr(err, "importing fingerprint file")
		logging.Info("imported fingerprint file", zap.String("path", *importFile))

	case *importDir != "":
		summary := app.registrar.ImportDirectory(ctx, *importDir, *force)
		printSummary(summary)

	case *exportName != "":
		if *exportOut == "" {
			fmt.Fprintln(os.Stderr, "-export requires -export-out")
			os.Exit(1)
		}
		err := app.registrar.ExportFingerprintFile(ctx, *exportName, *exportOut)
		exitOnErr(err, "exporting fingerprint file")
		logging.Info("exported fingerprint file", zap.String("name", *exportName), zap.String("path", *exportOut))

	case *cleanupCmd:
		n, err := app.store.CleanupUnfingerprinted(ctx)
		exitOnErr(err, "cleaning up unfingerprinted references")
		logging.Info("cleanup complete", zap.Int("removed", n))

	case *deleteName != "":
		exitOnErr(app.deleteReference(ctx, *deleteName), "deleting reference")
		logging.Info("deleted reference", zap.String("name", *deleteName))

	case *listCmd:
		refs, err := app.store.ListReferences(ctx)
		exitOnErr(err, "listing references")
		if len(refs) == 0 {
			fmt.Println("no references registered")
			return
		}
		for _, ref := range refs {
			fmt.Printf("%d\t%s\t%s\n", ref.ID, ref.Name, ref.ContentDigest)
		}

	case *queryField != "":
		field, value, ok := strings.Cut(*queryField, "=")
		if !ok {
			fmt.Fprintln(os.Stderr, "-query-metadata expects field=value")
			os.Exit(1)
		}
		results, err := app.metadata.QueryByField(ctx, field, value)
		exitOnErr(err, "querying metadata")
		for _, m := range results {
			fmt.Printf("%s\t%v\n", m.Name, m.Doc)
		}

	case *recognizeFile != "":
		app.recognizeFile(ctx, *recognizeFile)

	case *microphoneCmd:
		app.recognizeFromMicrophone(ctx)

	default:
		flag.Usage()
		os.Exit(1)
	}
}

func exitOnErr(err error, context string) {
	if err == nil {
		return
	}
	logging.Error(apperr.Wrap(err, context))
	os.Exit(1)
}

func printSummary(summary model.BatchSummary) {
	fmt.Printf("total=%d succeeded=%d skipped=%d failed=%d\n",
		summary.Total, summary.Succeeded, summary.Skipped, summary.Failed)
	for _, f := range summary.Failures {
		fmt.Printf("  FAILED %s: %s\n", f.Artifact, f.Reason)
	}
}

// app bundles the wired collaborators a single CLI invocation needs.
type app struct {
	cfg       config.Config
	store     store.Store
	metadata  metadata.Store
	matcher   *matcher.Matcher
	registrar *registrar.Registrar
	mqtt      *mqttsink.Sink // nil when mqtt.broker is unset
}

func newApp(cfg config.Config) (*app, error) {
	s, err := openStore(cfg.Fingerprint.Database)
	if err != nil {
		return nil, err
	}
	md, err := openMetadata(cfg.Fingerprint.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		store:     s,
		metadata:  md,
		matcher:   matcher.New(s),
		registrar: registrar.New(s, md),
	}

	if cfg.MQTT.Broker != "" {
		sink, err := mqttsink.New(cfg.MQTT)
		if err != nil {
			logging.Error(apperr.Wrap(err, "connecting to mqtt broker, continuing without it"))
		} else {
			a.mqtt = sink
		}
	}

	return a, nil
}

func (a *app) Close() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	a.store.Close()
	a.metadata.Close()
}

func openStore(db config.DatabaseConfig) (store.Store, error) {
	switch db.Type {
	case "", "memory":
		return store.NewInMemory(), nil
	case "postgresql", "postgres":
		return store.NewPostgres(postgresDSN(db))
	case "mysql":
		return store.NewMySQL(mysqlDSN(db))
	default:
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "unknown database type %q", db.Type)
	}
}

func openMetadata(db config.DatabaseConfig) (metadata.Store, error) {
	switch db.Type {
	case "", "memory":
		return metadata.NewInMemory(), nil
	case "postgresql", "postgres":
		return metadata.NewPostgres(postgresDSN(db))
	case "mysql":
		return metadata.NewMySQL(mysqlDSN(db))
	default:
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "unknown database type %q", db.Type)
	}
}

func postgresDSN(db config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		db.Host, db.Port, db.Database, db.User, db.Password)
}

func mysqlDSN(db config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", db.User, db.Password, db.Host, db.Port, db.Database)
}

// deleteReference resolves name to an id then removes it from both
// stores, mirroring the teacher's id-keyed -delete but accepting the
// human-readable name this domain registers references under.
func (a *app) deleteReference(ctx context.Context, name string) error {
	ref, ok, err := a.store.GetReferenceByName(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Wrapf(apperr.ErrInvalidInput, "no such reference %q", name)
	}
	if err := a.store.DeleteReference(ctx, ref.ID); err != nil {
		return err
	}
	return a.metadata.Delete(ctx, name)
}

// nameResolver builds a one-shot id->name lookup for the recognizer, as
// the fingerprint store only deals in numeric ids.
func (a *app) nameResolver(ctx context.Context) func(uint32) string {
	refs, err := a.store.ListReferences(ctx)
	if err != nil {
		logging.Error(apperr.Wrap(err, "loading reference names for recognition"))
		return func(id uint32) string { return fmt.Sprintf("reference-%d", id) }
	}
	names := make(map[uint32]string, len(refs))
	for _, r := range refs {
		names[r.ID] = r.Name
	}
	return func(id uint32) string {
		if n, ok := names[id]; ok {
			return n
		}
		return fmt.Sprintf("reference-%d", id)
	}
}

func (a *app) buildRecognizer(ctx context.Context) *recognizer.Recognizer {
	rc := a.cfg.Fingerprint.Recognition
	cfg := recognizer.Config{
		SampleRate:          44100,
		WindowDuration:      rc.WindowDuration,
		HopDuration:         rc.HopDuration,
		ConfidenceThreshold: rc.ConfidenceThreshold,
		EnergyThresholdDB:   rc.EnergyThresholdDB,
		DebounceDuration:    rc.DebounceDuration,
	}

	var sinks []eventsink.Sink
	if a.mqtt != nil {
		sinks = append(sinks, a.mqtt)
	}
	var debouncedSink eventsink.Sink
	if len(sinks) > 0 {
		debouncedSink = eventsink.NewMultiSink(sinks...)
	}

	rec := recognizer.New(cfg, a.matcher, a.metadata, eventsink.NewLogSink(), debouncedSink)
	rec.SetNameResolver(a.nameResolver(ctx))
	return rec
}

// recognizeFile decodes an audio file fully, chunking it at the
// recognizer's hop duration to reuse the same streaming code path a
// microphone session exercises.
func (a *app) recognizeFile(ctx context.Context, path string) {
	samples, err := audio.DecodeFile(path)
	exitOnErr(err, "decoding audio file")

	rec := a.buildRecognizer(ctx)
	hopSamples := int(a.cfg.Fingerprint.Recognition.HopDuration * 44100)
	if hopSamples <= 0 {
		hopSamples = 22050
	}

	var found *model.Detection
	for offset := 0; offset < len(samples); offset += hopSamples {
		end := offset + hopSamples
		if end > len(samples) {
			end = len(samples)
		}
		detection, err := rec.ProcessChunk(ctx, samples[offset:end])
		exitOnErr(err, "processing audio chunk")
		if detection != nil {
			found = detection
		}
	}

	if found == nil {
		fmt.Println(apperr.ErrNoMatch)
		return
	}
	fmt.Printf("%s (confidence=%.2f offset=%.2fs)\n", found.ReferenceName, found.Confidence, found.OffsetSeconds)
}

// recognizeFromMicrophone streams microphone chunks into the recognizer
// until SIGINT/SIGTERM, draining whatever chunk is in flight before
// returning (§5's single blocking suspension point at chunk capture).
func (a *app) recognizeFromMicrophone(ctx context.Context) {
	mic, err := audio.NewMicrophoneSource()
	exitOnErr(err, "opening microphone")
	defer mic.Close()

	exitOnErr(mic.Start(), "starting microphone capture")
	defer mic.Stop()

	rec := a.buildRecognizer(ctx)
	if a.mqtt != nil {
		if err := a.mqtt.PublishRunningStatus(true); err != nil {
			logging.Error(apperr.Wrap(err, "publishing running status"))
		}
		defer func() {
			if err := a.mqtt.PublishRunningStatus(false); err != nil {
				logging.Error(apperr.Wrap(err, "publishing running status"))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Info("listening for matches, press ctrl-c to stop")

	for {
		select {
		case <-sigCh:
			stats := rec.Stats()
			logging.Info("stopping microphone recognition",
				zap.Int("processed_windows", stats.ProcessedWindows),
				zap.Int("total_detections", stats.TotalDetections))
			return
		case chunk, ok := <-mic.Chunks():
			if !ok {
				return
			}
			detection, err := rec.ProcessChunk(ctx, chunk)
			if err != nil {
				logging.Error(apperr.Wrap(err, "processing microphone chunk"))
				continue
			}
			if detection != nil {
				fmt.Printf("%s (confidence=%.2f)\n", detection.ReferenceName, detection.Confidence)
			}
		}
	}
}
