// Package dedup rejects resubmissions of already-brokered content. A
// bloom filter gives a cheap early answer for exact resubmissions, but
// the scan over stored perceptual fingerprints always runs: a filter
// cannot answer near-duplicate questions.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/bits"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/corona10/goimagehash"
)

const (
	bloomCapacity  = 10000
	bloomErrorRate = 0.001

	// Hamming distance at or below which two fingerprints are the same
	// content for market purposes.
	DistanceThreshold = 5
)

var ErrDuplicate = errors.New("duplicate content")

// DuplicateError carries which stored item matched and how closely.
type DuplicateError struct {
	ItemID   int64
	Distance int
	ExactURL bool
}

func (e *DuplicateError) Error() string {
	if e.ExactURL {
		return fmt.Sprintf("duplicate content: same source as item %d", e.ItemID)
	}
	return fmt.Sprintf("duplicate content: matches item %d at distance %d", e.ItemID, e.Distance)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// Fingerprint is one stored item's identity for duplicate checks.
type Fingerprint struct {
	ItemID  int64
	URL     string
	Hash    uint64
	HasHash bool
}

// Source supplies every stored fingerprint for the exhaustive scan.
type Source interface {
	AllFingerprints(ctx context.Context) ([]Fingerprint, error)
}

type Detector struct {
	source Source

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

func NewDetector(source Source) *Detector {
	return &Detector{
		source: source,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomErrorRate),
	}
}

// HashImage computes the perceptual fingerprint of decoded content.
func HashImage(img image.Image) (uint64, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	return hash.GetHash(), nil
}

// FormatHash renders a fingerprint the way it is stored.
func FormatHash(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

// ParseHash reverses FormatHash. Empty input means no fingerprint.
func ParseHash(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Check returns a DuplicateError when the submission matches stored
// content, either by source URL or by Hamming distance. A positive
// bloom answer alone never rejects; it only flags a likely exact match
// before the scan confirms it.
func (d *Detector) Check(ctx context.Context, url string, hash uint64) error {
	d.mu.RLock()
	maybeSeen := d.filter.TestString(url) || d.filter.TestString(FormatHash(hash))
	d.mu.RUnlock()

	if maybeSeen {
		slog.Debug("Bloom filter hit, confirming against stored fingerprints",
			slog.String("type", "sys"),
			slog.String("url", url))
	}

	prints, err := d.source.AllFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fingerprints: %w", err)
	}

	for _, p := range prints {
		if p.URL != "" && p.URL == url {
			return &DuplicateError{ItemID: p.ItemID, ExactURL: true}
		}
		if !p.HasHash {
			continue
		}
		if dist := Distance(p.Hash, hash); dist <= DistanceThreshold {
			return &DuplicateError{ItemID: p.ItemID, Distance: dist}
		}
	}

	return nil
}

// MaybeKnown reports whether the filter has seen either key. False
// means definitely new; true is advisory only, Check decides.
func (d *Detector) MaybeKnown(url string, hash uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter.TestString(url) || d.filter.TestString(FormatHash(hash))
}

// Add records an accepted submission. The filter only grows; deleted
// items merely cost a scan later.
func (d *Detector) Add(url string, hash uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.AddString(url)
	d.filter.AddString(FormatHash(hash))
}

// Rebuild repopulates the filter from the source of truth. Called at
// startup; the filter is never persisted.
func (d *Detector) Rebuild(ctx context.Context) error {
	prints, err := d.source.AllFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild bloom filter: %w", err)
	}

	filter := bloom.NewWithEstimates(bloomCapacity, bloomErrorRate)
	for _, p := range prints {
		if p.URL != "" {
			filter.AddString(p.URL)
		}
		if p.HasHash {
			filter.AddString(FormatHash(p.Hash))
		}
	}

	d.mu.Lock()
	d.filter = filter
	d.mu.Unlock()

	slog.Info("Duplicate filter rebuilt",
		slog.String("type", "sys"),
		slog.Int("fingerprints", len(prints)))
	return nil
}
