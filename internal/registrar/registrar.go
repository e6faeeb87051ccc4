// Package registrar implements the reference registrar (C6): both
// ingestion paths (decoded audio, pre-computed fingerprint file) and the
// supplemented batch/directory registration operations.
package registrar

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/audio"
	"github.com/media-luna/resonance/internal/dsp"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/logging"
	"github.com/media-luna/resonance/internal/metadata"
	"github.com/media-luna/resonance/internal/model"
	"github.com/media-luna/resonance/internal/store"
	"go.uber.org/zap"
)

// Registrar ingests reference recordings into the fingerprint and
// metadata stores.
type Registrar struct {
	store    store.Store
	metadata metadata.Store
}

// New returns a Registrar writing to s and md.
func New(s store.Store, md metadata.Store) *Registrar {
	return &Registrar{store: s, metadata: md}
}

// RegisterFromAudio implements ingestion path 1 (§4.6): decode audio to
// mono float PCM, hash the original file bytes, run C1+C2, and commit
// the reference, its postings, and its metadata.
func (r *Registrar) RegisterFromAudio(ctx context.Context, audioPath, name string, doc map[string]any, debounceSeconds *float64) error {
	if existing, ok, err := r.store.GetReferenceByName(ctx, name); err != nil {
		return err
	} else if ok && existing.Fingerprinted {
		return apperr.ErrDuplicateReference
	}

	digest, err := audio.SHA1File(audioPath)
	if err != nil {
		return apperr.Wrapf(err, "hashing audio file %s", audioPath)
	}

	samples, err := audio.DecodeFile(audioPath)
	if err != nil {
		return apperr.Wrapf(err, "decoding audio file %s", audioPath)
	}

	pairs := fingerprintPairs(samples)

	id, err := r.store.InsertReference(ctx, name, digest)
	if err != nil {
		return err
	}
	if err := r.store.InsertPostingsBatch(ctx, id, pairs); err != nil {
		return apperr.Wrapf(err, "inserting postings for %s", name)
	}
	if err := r.store.SetFingerprinted(ctx, id); err != nil {
		return err
	}

	return r.metadata.Upsert(ctx, model.Metadata{
		Name:            name,
		Doc:             doc,
		SourceFile:      audioPath,
		DateAdded:       time.Now(),
		DebounceSeconds: debounceSeconds,
	})
}

// RegisterFromYAML reads a reference metadata YAML file (§6), locates
// its source audio next to it (guessing extensions if the literal
// filename isn't found, matching find_audio_file), and registers it.
func (r *Registrar) RegisterFromYAML(ctx context.Context, yamlPath string) (string, error) {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}

	var ref model.ReferenceYAML
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	if ref.Source == "" || ref.Metadata == nil {
		return "", apperr.Wrapf(apperr.ErrInvalidInput, "%s: missing required source/metadata fields", yamlPath)
	}

	audioPath, err := findAudioFile(yamlPath, ref.Source)
	if err != nil {
		return "", err
	}

	name := referenceName(yamlPath, ref.Metadata)
	if err := r.RegisterFromAudio(ctx, audioPath, name, ref.Metadata, ref.DebounceSeconds); err != nil {
		return name, err
	}
	return name, nil
}

// findAudioFile mirrors the original's find_audio_file: look for source
// next to yamlPath first, then guess common extensions off its stem.
func findAudioFile(yamlPath, source string) (string, error) {
	dir := filepath.Dir(yamlPath)
	candidate := filepath.Join(dir, source)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	stem := strings.TrimSuffix(source, filepath.Ext(source))
	for _, ext := range []string{".mp3", ".wav", ".m4a", ".ogg", ".flac"} {
		guess := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(guess); err == nil {
			return guess, nil
		}
	}
	return "", apperr.Wrapf(apperr.ErrInvalidInput, "could not locate audio for source %q next to %s", source, yamlPath)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// referenceName builds "game_slug_song_slug" from metadata fields,
// falling back to the YAML file's stem when game/song are absent.
func referenceName(yamlPath string, doc map[string]any) string {
	var parts []string
	if game, ok := doc["game"].(string); ok && game != "" {
		parts = append(parts, slugify(game))
	}
	if song, ok := doc["song"].(string); ok && song != "" {
		parts = append(parts, slugify(song))
	}
	if len(parts) == 0 {
		stem := filepath.Base(yamlPath)
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
		return slugify(stem)
	}
	return strings.Join(parts, "_")
}

// RegisterDirectory walks dir registering every YAML reference file
// (".yaml"/".yml"; the extension set is fixed), optionally recursively,
// reporting a §7 batch summary. Files are registered
// concurrently across a GOMAXPROCS-sized worker pool.
func (r *Registrar) RegisterDirectory(ctx context.Context, dir string, recursive bool) model.BatchSummary {
	entries, err := collectYAMLFiles(dir, recursive)
	if err != nil {
		return model.BatchSummary{
			Failed:   1,
			Failures: []model.FailureDetail{{Artifact: dir, Reason: err.Error()}},
		}
	}

	bar := progressbar.Default(int64(len(entries)), "registering references")
	return runWorkerPool(entries, bar, func(path string) (batchOutcome, error) {
		name, err := r.RegisterFromYAML(ctx, path)
		if err != nil {
			if apperr.Is(err, apperr.ErrDuplicateReference) {
				return outcomeSkipped, nil
			}
			logging.Error(err, zap.String("file", path))
			return outcomeFailed, err
		}
		logging.Info("registered reference", zap.String("name", name), zap.String("file", path))
		return outcomeSucceeded, nil
	})
}

// classFile pairs a reference YAML file with the class slug derived
// from its parent subdirectory.
type classFile struct {
	path      string
	classSlug string
}

// RegisterDirectoryByClass treats each immediate subdirectory of
// trainingDir as a class, prefixing every reference name registered
// from within it with the subdirectory's slug, matching
// register_directory_by_class. Files across all classes are registered
// concurrently across a single GOMAXPROCS-sized worker pool.
func (r *Registrar) RegisterDirectoryByClass(ctx context.Context, trainingDir string) model.BatchSummary {
	classDirs, err := os.ReadDir(trainingDir)
	if err != nil {
		return model.BatchSummary{
			Failed:   1,
			Failures: []model.FailureDetail{{Artifact: trainingDir, Reason: err.Error()}},
		}
	}

	var files []classFile
	var dirFailures []model.FailureDetail
	for _, entry := range classDirs {
		if !entry.IsDir() {
			continue
		}
		classSlug := slugify(entry.Name())
		classDir := filepath.Join(trainingDir, entry.Name())

		found, err := collectYAMLFiles(classDir, false)
		if err != nil {
			dirFailures = append(dirFailures, model.FailureDetail{Artifact: classDir, Reason: err.Error()})
			continue
		}
		for _, path := range found {
			files = append(files, classFile{path: path, classSlug: classSlug})
		}
	}

	paths := make([]string, len(files))
	byPath := make(map[string]classFile, len(files))
	for i, f := range files {
		paths[i] = f.path
		byPath[f.path] = f
	}

	bar := progressbar.Default(int64(len(paths)), "registering references by class")
	summary := runWorkerPool(paths, bar, func(path string) (batchOutcome, error) {
		f := byPath[path]
		name, err := r.registerFromYAMLPrefixed(ctx, path, f.classSlug)
		if err != nil {
			if apperr.Is(err, apperr.ErrDuplicateReference) {
				return outcomeSkipped, nil
			}
			return outcomeFailed, err
		}
		logging.Info("registered reference", zap.String("name", name), zap.String("class", f.classSlug))
		return outcomeSucceeded, nil
	})
	summary.Failed += len(dirFailures)
	summary.Failures = append(summary.Failures, dirFailures...)
	return summary
}

func (r *Registrar) registerFromYAMLPrefixed(ctx context.Context, yamlPath, classSlug string) (string, error) {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	var ref model.ReferenceYAML
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	if ref.Source == "" || ref.Metadata == nil {
		return "", apperr.Wrapf(apperr.ErrInvalidInput, "%s: missing required source/metadata fields", yamlPath)
	}

	audioPath, err := findAudioFile(yamlPath, ref.Source)
	if err != nil {
		return "", err
	}

	name := classSlug + "_" + referenceName(yamlPath, ref.Metadata)
	if err := r.RegisterFromAudio(ctx, audioPath, name, ref.Metadata, ref.DebounceSeconds); err != nil {
		return name, err
	}
	return name, nil
}

func collectYAMLFiles(dir string, recursive bool) ([]string, error) {
	var out []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isYAML(path) {
				out = append(out, path)
			}
			return nil
		})
		return out, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && isYAML(entry.Name()) {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func fingerprintPairs(samples []float64) []fingerprint.Pair {
	spec := dsp.Spectrogram(samples)
	peaks := dsp.PickPeaks(spec)
	return fingerprint.Generate(peaks)
}

// batchOutcome classifies how a single item in a worker pool batch
// resolved, for accumulation into a §7 model.BatchSummary.
type batchOutcome int

const (
	outcomeSucceeded batchOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// runWorkerPool processes items across a pool of runtime.GOMAXPROCS
// workers, calling process for each and accumulating the results into a
// model.BatchSummary under a shared mutex. bar is advanced once per
// completed item; schollz/progressbar/v3 guards its own state, so no
// extra locking is needed around bar.Add.
func runWorkerPool(items []string, bar *progressbar.ProgressBar, process func(path string) (batchOutcome, error)) model.BatchSummary {
	summary := model.BatchSummary{Total: len(items)}
	if len(items) == 0 {
		return summary
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(items) {
		workers = len(items)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan string)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				outcome, err := process(path)
				bar.Add(1)

				mu.Lock()
				switch outcome {
				case outcomeSucceeded:
					summary.Succeeded++
				case outcomeSkipped:
					summary.Skipped++
				case outcomeFailed:
					summary.Failed++
					summary.Failures = append(summary.Failures, model.FailureDetail{Artifact: path, Reason: err.Error()})
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range items {
		jobs <- path
	}
	close(jobs)
	wg.Wait()

	return summary
}
