package registrar

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/audio"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/logging"
	"github.com/media-luna/resonance/internal/model"
	"go.uber.org/zap"
)

// dateLayout matches the original's ISO-8601 date_created stamp.
const dateLayout = "2006-01-02T15:04:05Z07:00"

// RegisterFromFingerprintFile implements ingestion path 2 (§4.6): load a
// pre-computed fingerprint file and commit its postings without touching
// the source audio again. Without force, an existing fingerprinted
// reference with the same name yields apperr.ErrDuplicateReference. With
// force, that reference is deleted and re-imported, unless its content
// digest equals the file's file_sha1, in which case it is left as is.
func (r *Registrar) RegisterFromFingerprintFile(ctx context.Context, path string, force bool) error {
	ff, err := readFingerprintFile(path)
	if err != nil {
		return err
	}

	existing, ok, err := r.store.GetReferenceByName(ctx, ff.SongName)
	if err != nil {
		return err
	}
	if ok && existing.Fingerprinted {
		if !force {
			return apperr.ErrDuplicateReference
		}
		if existing.ContentDigest == ff.FileSHA1 {
			logging.Info("fingerprint file unchanged, skipping reimport",
				zap.String("reference", ff.SongName))
			return nil
		}
		if err := r.store.DeleteReference(ctx, existing.ID); err != nil {
			return err
		}
	}

	id, err := r.store.InsertReference(ctx, ff.SongName, ff.FileSHA1)
	if err != nil {
		return err
	}

	pairs := make([]fingerprint.Pair, len(ff.Fingerprints))
	for i, p := range ff.Fingerprints {
		pairs[i] = fingerprint.Pair{Hash: p.Hash, Offset: p.Offset}
	}
	if err := r.store.InsertPostingsBatch(ctx, id, pairs); err != nil {
		return apperr.Wrapf(err, "importing postings for %s", ff.SongName)
	}
	if err := r.store.SetFingerprinted(ctx, id); err != nil {
		return err
	}

	return r.metadata.Upsert(ctx, model.Metadata{
		Name:            ff.SongName,
		Doc:             ff.Metadata,
		SourceFile:      ff.SourceFile,
		DateAdded:       time.Now(),
		DebounceSeconds: ff.DebounceSeconds,
	})
}

func readFingerprintFile(path string) (model.FingerprintFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.FingerprintFile{}, apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	var ff model.FingerprintFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return model.FingerprintFile{}, apperr.Wrapf(apperr.ErrInvalidInput, "%s: %s", path, err.Error())
	}
	if ff.SongName == "" {
		return model.FingerprintFile{}, apperr.Wrapf(apperr.ErrInvalidInput, "%s: missing song_name", path)
	}
	return ff, nil
}

// ImportDirectory registers every *.fp.json fingerprint file found
// directly under dir, reporting a §7 batch summary. force is forwarded
// to RegisterFromFingerprintFile. Files are imported concurrently across
// a GOMAXPROCS-sized worker pool.
func (r *Registrar) ImportDirectory(ctx context.Context, dir string, force bool) model.BatchSummary {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return model.BatchSummary{
			Failed:   1,
			Failures: []model.FailureDetail{{Artifact: dir, Reason: err.Error()}},
		}
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".fp.json") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	bar := progressbar.Default(int64(len(paths)), "importing fingerprint files")
	return runWorkerPool(paths, bar, func(path string) (batchOutcome, error) {
		err := r.RegisterFromFingerprintFile(ctx, path, force)
		if err != nil {
			if apperr.Is(err, apperr.ErrDuplicateReference) {
				return outcomeSkipped, nil
			}
			logging.Error(err, zap.String("file", path))
			return outcomeFailed, err
		}
		return outcomeSucceeded, nil
	})
}

// GenerateFingerprintFile implements the regeneration policy of §4.6: if
// outputPath already holds a fingerprint file whose file_sha1 matches the
// current audio digest, generation is skipped; otherwise the file is
// (re)computed and written. Returns true if a file was written.
func (r *Registrar) GenerateFingerprintFile(audioPath, outputPath, songName string, doc map[string]any, debounceSeconds *float64) (bool, error) {
	digest, err := audio.SHA1File(audioPath)
	if err != nil {
		return false, apperr.Wrapf(err, "hashing audio file %s", audioPath)
	}

	if existing, err := readFingerprintFile(outputPath); err == nil {
		if existing.FileSHA1 == digest {
			logging.Info("fingerprint file up to date, skipping regeneration",
				zap.String("path", outputPath))
			return false, nil
		}
	}

	samples, err := audio.DecodeFile(audioPath)
	if err != nil {
		return false, apperr.Wrapf(err, "decoding audio file %s", audioPath)
	}
	pairs := fingerprintPairs(samples)

	fps := make([]model.FingerprintPair, len(pairs))
	for i, p := range pairs {
		fps[i] = model.FingerprintPair{Hash: p.Hash, Offset: p.Offset}
	}

	ff := model.FingerprintFile{
		SongName:        songName,
		SourceFile:      audioPath,
		Metadata:        doc,
		DebounceSeconds: debounceSeconds,
		FileSHA1:        digest,
		DateCreated:     time.Now().Format(dateLayout),
		TotalHashes:     len(fps),
		Fingerprints:    fps,
	}

	out, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return false, apperr.Wrap(err, "marshaling fingerprint file")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return false, apperr.Wrap(err, "creating output directory")
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return false, apperr.Wrap(err, "writing fingerprint file")
	}
	return true, nil
}

// GenerateDirectory walks dir for reference YAML files and regenerates a
// "<stem>.fp.json" fingerprint file next to each one, applying the
// skip-on-hash-match policy, reporting a §7 batch summary. Files are
// processed concurrently across a GOMAXPROCS-sized worker pool.
func (r *Registrar) GenerateDirectory(dir string) model.BatchSummary {
	files, err := collectYAMLFiles(dir, false)
	if err != nil {
		return model.BatchSummary{
			Failed:   1,
			Failures: []model.FailureDetail{{Artifact: dir, Reason: err.Error()}},
		}
	}

	bar := progressbar.Default(int64(len(files)), "generating fingerprint files")
	return runWorkerPool(files, bar, func(yamlPath string) (batchOutcome, error) {
		if err := r.generateOneFromYAML(yamlPath); err != nil {
			logging.Error(err, zap.String("file", yamlPath))
			return outcomeFailed, err
		}
		return outcomeSucceeded, nil
	})
}

func (r *Registrar) generateOneFromYAML(yamlPath string) error {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	var ref model.ReferenceYAML
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return apperr.Wrap(apperr.ErrInvalidInput, err.Error())
	}
	if ref.Source == "" || ref.Metadata == nil {
		return apperr.Wrapf(apperr.ErrInvalidInput, "%s: missing required source/metadata fields", yamlPath)
	}

	audioPath, err := findAudioFile(yamlPath, ref.Source)
	if err != nil {
		return err
	}

	stem := strings.TrimSuffix(filepath.Base(yamlPath), filepath.Ext(yamlPath))
	outputPath := filepath.Join(filepath.Dir(yamlPath), stem+".fp.json")
	name := referenceName(yamlPath, ref.Metadata)

	_, err = r.GenerateFingerprintFile(audioPath, outputPath, name, ref.Metadata, ref.DebounceSeconds)
	return err
}

// ExportFingerprintFile writes a fingerprint file (§6 supplemented export
// verb) for an already-registered reference by re-decoding and
// re-fingerprinting the source file recorded in its metadata. It does
// not read postings from the store, so it fails when no source file is
// recorded or that file can no longer be decoded.
func (r *Registrar) ExportFingerprintFile(ctx context.Context, name, outputPath string) error {
	ref, ok, err := r.store.GetReferenceByName(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Wrapf(apperr.ErrInvalidInput, "no such reference %q", name)
	}

	refs, err := r.store.ListReferences(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, rr := range refs {
		if rr.ID == ref.ID {
			found = true
			break
		}
	}
	if !found {
		return apperr.Wrapf(apperr.ErrInvalidInput, "reference %q has no committed postings", name)
	}

	meta, ok, err := r.metadata.Get(ctx, name)
	if err != nil {
		return err
	}
	var doc map[string]any
	var debounce *float64
	sourceFile := ""
	if ok {
		doc = meta.Doc
		debounce = meta.DebounceSeconds
		sourceFile = meta.SourceFile
	}

	// Postings aren't re-exposed individually by the Store interface
	// (only via ReturnMatches against a query), so export re-derives them
	// by decoding the original source file when it is still reachable.
	if sourceFile == "" {
		return apperr.Wrapf(apperr.ErrInvalidInput, "reference %q has no recorded source file to export from", name)
	}
	samples, err := audio.DecodeFile(sourceFile)
	if err != nil {
		return apperr.Wrapf(err, "re-decoding source for export: %s", sourceFile)
	}
	pairs := fingerprintPairs(samples)
	fps := make([]model.FingerprintPair, len(pairs))
	for i, p := range pairs {
		fps[i] = model.FingerprintPair{Hash: p.Hash, Offset: p.Offset}
	}

	ff := model.FingerprintFile{
		SongName:        name,
		SourceFile:      sourceFile,
		Metadata:        doc,
		DebounceSeconds: debounce,
		FileSHA1:        ref.ContentDigest,
		DateCreated:     time.Now().Format(dateLayout),
		TotalHashes:     len(fps),
		Fingerprints:    fps,
	}

	out, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return apperr.Wrap(err, "marshaling fingerprint file")
	}
	return apperr.Wrap(os.WriteFile(outputPath, out, 0o644), "writing exported fingerprint file")
}
