package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySource struct {
	prints []Fingerprint
}

func (s *memorySource) AllFingerprints(_ context.Context) ([]Fingerprint, error) {
	return s.prints, nil
}

func (s *memorySource) add(d *Detector, id int64, url string, hash uint64) {
	s.prints = append(s.prints, Fingerprint{ItemID: id, URL: url, Hash: hash, HasHash: true})
	d.Add(url, hash)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0xdeadbeef, 0xdeadbeef))
	assert.Equal(t, 1, Distance(0b1000, 0b0000))
	assert.Equal(t, 64, Distance(0, ^uint64(0)))
}

func TestHashRoundTrip(t *testing.T) {
	h := uint64(0x0123456789abcdef)
	s := FormatHash(h)
	assert.Equal(t, "0123456789abcdef", s)

	parsed, ok := ParseHash(s)
	assert.True(t, ok)
	assert.Equal(t, h, parsed)

	_, ok = ParseHash("")
	assert.False(t, ok)
	_, ok = ParseHash("not-hex")
	assert.False(t, ok)
}

func TestCheckFreshContentPasses(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}
	d := NewDetector(src)

	err := d.Check(ctx, "https://cdn.example/a.png", 0xaaaaaaaaaaaaaaaa)
	assert.NoError(t, err)
}

func TestCheckExactHashRejected(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}
	d := NewDetector(src)

	src.add(d, 7, "https://cdn.example/a.png", 0xaaaaaaaaaaaaaaaa)

	err := d.Check(ctx, "https://cdn.example/b.png", 0xaaaaaaaaaaaaaaaa)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, int64(7), dup.ItemID)
	assert.Equal(t, 0, dup.Distance)
}

func TestCheckNearHashRejected(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}
	d := NewDetector(src)

	base := uint64(0xaaaaaaaaaaaaaaaa)
	src.add(d, 3, "https://cdn.example/a.png", base)

	// Flip 5 bits: still within the threshold
	near := base ^ 0b11111
	err := d.Check(ctx, "https://cdn.example/b.png", near)
	require.Error(t, err)

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 5, dup.Distance)
}

func TestCheckDistantHashPasses(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}
	d := NewDetector(src)

	base := uint64(0xaaaaaaaaaaaaaaaa)
	src.add(d, 3, "https://cdn.example/a.png", base)

	// Flip 6 bits: just past the threshold
	far := base ^ 0b111111
	assert.NoError(t, d.Check(ctx, "https://cdn.example/b.png", far))
}

func TestCheckSameURLRejected(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}
	d := NewDetector(src)

	src.add(d, 11, "https://cdn.example/a.png", 0x1111111111111111)

	err := d.Check(ctx, "https://cdn.example/a.png", 0xffffffffffffffff)
	require.Error(t, err)

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.ExactURL)
	assert.Equal(t, int64(11), dup.ItemID)
}

func TestCheckScanRunsWithoutFilter(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{prints: []Fingerprint{
		{ItemID: 1, URL: "https://cdn.example/a.png", Hash: 0xaaaaaaaaaaaaaaaa, HasHash: true},
	}}

	// A fresh filter knows nothing, but the fingerprint scan still
	// catches the duplicate.
	d := NewDetector(src)
	err := d.Check(ctx, "https://cdn.example/b.png", 0xaaaaaaaaaaaaaaaa)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{prints: []Fingerprint{
		{ItemID: 1, URL: "https://cdn.example/a.png", Hash: 0xaaaaaaaaaaaaaaaa, HasHash: true},
	}}

	d := NewDetector(src)
	assert.False(t, d.MaybeKnown("https://cdn.example/a.png", 0xaaaaaaaaaaaaaaaa))

	require.NoError(t, d.Rebuild(ctx))
	assert.True(t, d.MaybeKnown("https://cdn.example/a.png", 0xaaaaaaaaaaaaaaaa))
	assert.True(t, d.MaybeKnown("https://cdn.example/other.png", 0xaaaaaaaaaaaaaaaa))
	assert.False(t, d.MaybeKnown("https://cdn.example/other.png", 0x1234123412341234))
}
