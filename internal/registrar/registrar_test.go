package registrar

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/media-luna/resonance/internal/audio"
	"github.com/media-luna/resonance/internal/metadata"
	"github.com/media-luna/resonance/internal/model"
	"github.com/media-luna/resonance/internal/store"
)

func TestFindAudioFileLiteralMatch(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "song.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake"), 0o644))

	yamlPath := filepath.Join(dir, "song.yaml")
	found, err := findAudioFile(yamlPath, "song.wav")
	require.NoError(t, err)
	require.Equal(t, audioPath, found)
}

func TestFindAudioFileExtensionGuess(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake"), 0o644))

	yamlPath := filepath.Join(dir, "song.yaml")
	found, err := findAudioFile(yamlPath, "song.wav")
	require.NoError(t, err)
	require.Equal(t, audioPath, found)
}

func TestFindAudioFileMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := findAudioFile(filepath.Join(dir, "song.yaml"), "missing.wav")
	require.Error(t, err)
}

func TestReferenceNameFromGameAndSong(t *testing.T) {
	name := referenceName("/tmp/whatever.yaml", map[string]any{
		"game": "Super Game!",
		"song": "Main Theme",
	})
	require.Equal(t, "super_game_main_theme", name)
}

func TestReferenceNameFallsBackToFileStem(t *testing.T) {
	name := referenceName("/tmp/some-song.yaml", map[string]any{"doc": "x"})
	require.Equal(t, "some_song", name)
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "foo_bar", slugify("  Foo  Bar!! "))
	require.Equal(t, "abc123", slugify("abc123"))
}

func TestRegisterFromFingerprintFileImportsPostings(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemory()
	md := metadata.NewInMemory()
	r := New(s, md)

	ff := model.FingerprintFile{
		SongName: "imported-song",
		FileSHA1: "deadbeef",
		Metadata: map[string]any{"game": "Test"},
		Fingerprints: []model.FingerprintPair{
			{Hash: "aaaaaaaaaaaaaaaaaaaa", Offset: 1},
			{Hash: "bbbbbbbbbbbbbbbbbbbb", Offset: 2},
		},
	}
	path := writeFingerprintFile(t, dir, ff)

	ctx := context.Background()
	require.NoError(t, r.RegisterFromFingerprintFile(ctx, path, false))

	ref, ok, err := s.GetReferenceByName(ctx, "imported-song")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ref.Fingerprinted)

	m, ok, err := md.Get(ctx, "imported-song")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Test", m.Doc["game"])
}

func TestRegisterFromFingerprintFileDuplicateWithoutForce(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemory()
	md := metadata.NewInMemory()
	r := New(s, md)
	ctx := context.Background()

	ff := model.FingerprintFile{SongName: "dup", FileSHA1: "abc"}
	path := writeFingerprintFile(t, dir, ff)

	require.NoError(t, r.RegisterFromFingerprintFile(ctx, path, false))
	err := r.RegisterFromFingerprintFile(ctx, path, false)
	require.Error(t, err)
}

func TestRegisterFromFingerprintFileForceSkipsUnchangedDigest(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemory()
	md := metadata.NewInMemory()
	r := New(s, md)
	ctx := context.Background()

	ff := model.FingerprintFile{SongName: "same-digest", FileSHA1: "same"}
	path := writeFingerprintFile(t, dir, ff)

	require.NoError(t, r.RegisterFromFingerprintFile(ctx, path, false))
	require.NoError(t, r.RegisterFromFingerprintFile(ctx, path, true))

	count, err := s.CountReferences(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestImportDirectorySkipsNonFingerprintFiles(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemory()
	md := metadata.NewInMemory()
	r := New(s, md)

	writeFingerprintFile(t, dir, model.FingerprintFile{SongName: "one", FileSHA1: "a"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	summary := r.ImportDirectory(context.Background(), dir, false)
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Succeeded)
}

func TestGenerateFingerprintFileSkipsUnchangedDigest(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemory()
	md := metadata.NewInMemory()
	r := New(s, md)

	audioPath := filepath.Join(dir, "song.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("not really audio, just bytes to hash"), 0o644))

	digest, err := audio.SHA1File(audioPath)
	require.NoError(t, err)

	outputPath := writeFingerprintFile(t, dir, model.FingerprintFile{SongName: "song", FileSHA1: digest})

	wrote, err := r.GenerateFingerprintFile(audioPath, outputPath, "song", nil, nil)
	require.NoError(t, err)
	require.False(t, wrote)
}

func writeFingerprintFile(t *testing.T, dir string, ff model.FingerprintFile) string {
	t.Helper()
	path := filepath.Join(dir, ff.SongName+".fp.json")
	data, err := json.Marshal(ff)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
