// Package model defines the shared data types that flow between the
// fingerprinting components: references, postings, metadata documents
// and the on-disk fingerprint file format.
package model

import "time"

// Reference is a registered recording: a stable id, a unique name, the
// SHA-1 digest of the source audio bytes, and whether its postings have
// all been committed.
type Reference struct {
	ID             uint32
	Name           string
	ContentDigest  string // hex-encoded SHA-1, 40 chars
	Fingerprinted  bool
}

// Posting is one (hash, reference, time_offset) tuple in the fingerprint
// index. Hash is the full 20-hex-character identifier (§4.2); durable
// backings store it verbatim, the in-memory store additionally projects
// it to a uint32 for fast lookups (see internal/fingerprint.Project32).
type Posting struct {
	Hash         string
	ReferenceID  uint32
	TimeOffset   uint32
}

// Match is a single (hash, query_offset) hit against a posting, reduced
// to the vote axis used by the matcher.
type Match struct {
	ReferenceID      uint32
	OffsetDifference int64
}

// Metadata is the schemaless JSON document associated with a reference,
// keyed by name. Doc holds arbitrary user fields (game, song, ...);
// DebounceSeconds, when non-nil, overrides the recognizer's global
// per-song debounce for this reference.
type Metadata struct {
	Name            string
	Doc             map[string]any
	SourceFile      string
	DateAdded       time.Time
	DebounceSeconds *float64
}

// FingerprintPair is a (hash, offset) entry as stored in a fingerprint
// file or returned by the hash generator for one reference.
type FingerprintPair struct {
	Hash   string `json:"hash"`
	Offset uint32 `json:"offset"`
}

// FingerprintFile is the on-disk JSON fingerprint file format (§6):
// self-contained enough to re-import into any store without re-decoding
// the source audio.
type FingerprintFile struct {
	SongName        string                 `json:"song_name"`
	SourceFile      string                 `json:"source_file"`
	Metadata        map[string]any         `json:"metadata"`
	DebounceSeconds *float64               `json:"debounce_seconds,omitempty"`
	FileSHA1        string                 `json:"file_sha1"`
	DateCreated      string                `json:"date_created"`
	TotalHashes     int                    `json:"total_hashes"`
	Fingerprints    []FingerprintPair      `json:"fingerprints"`
}

// ReferenceYAML is the input schema for registering a reference from a
// metadata YAML file alongside an audio file (§6).
type ReferenceYAML struct {
	Source          string         `yaml:"source"`
	Metadata        map[string]any `yaml:"metadata"`
	DebounceSeconds *float64       `yaml:"debounce_seconds,omitempty"`
}

// Detection is a single recognition result built by the recognizer for a
// window whose match passed the confidence gate, before debounce is
// applied to the sink emission.
type Detection struct {
	ReferenceName    string
	OffsetSeconds    float64
	Score            int
	Confidence       float64
}

// EventRecord is the structured recognition event formatted by the event
// sink adapter (§4.8).
type EventRecord struct {
	SongName      string         `json:"song_name"`
	Confidence    float64        `json:"confidence"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata"`
	Offset        float64        `json:"offset"`
	HashesMatched int            `json:"hashes_matched"`
}

// BatchSummary is the {total, succeeded, skipped, failed} report printed
// after a batch registration or import job (§7).
type BatchSummary struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []FailureDetail
}

// FailureDetail names the offending artifact and a one-line reason, as
// required by §7's user-visible error contract.
type FailureDetail struct {
	Artifact string
	Reason   string
}
