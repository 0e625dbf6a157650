// Package services holds the outward-facing plumbing: the tag
// frequency oracle, content archival, and the submission broker that
// ties the pipeline together.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
)

const (
	frequencyCacheSize = 10000
	frequencyTTL       = 30 * 24 * time.Hour

	// UnknownPostCount is reported when the upstream index cannot be
	// reached. High enough that the tag never counts as rare.
	UnknownPostCount = 9999999

	frequencyRequestTimeout = 10 * time.Second
)

// FrequencyOracle answers "how common is this tag" from a layered
// lookup: in-process LRU, then the tag_frequencies table with a 30-day
// TTL, then the public index. Failures are never cached.
type FrequencyOracle struct {
	baseURL string
	trends  repositories.TrendRepository
	cache   *lru.Cache
	client  *http.Client
}

func NewFrequencyOracle(baseURL string, trends repositories.TrendRepository) *FrequencyOracle {
	cache, _ := lru.New(frequencyCacheSize)
	return &FrequencyOracle{
		baseURL: baseURL,
		trends:  trends,
		cache:   cache,
		client:  &http.Client{Timeout: frequencyRequestTimeout},
	}
}

// PostCount implements the rarity lookup used during appraisal.
func (o *FrequencyOracle) PostCount(ctx context.Context, tag string) (int64, error) {
	if cached, ok := o.cache.Get(tag); ok {
		return cached.(int64), nil
	}

	freq, err := o.trends.GetFrequency(ctx, tag)
	if err != nil {
		return 0, fmt.Errorf("failed to read cached frequency: %w", err)
	}
	if freq != nil && time.Since(freq.FetchedAt) < frequencyTTL {
		o.cache.Add(tag, freq.PostCount)
		return freq.PostCount, nil
	}

	count, err := o.fetch(ctx, tag)
	if err != nil {
		slog.Warn("Tag index unreachable, treating tag as common",
			slog.String("type", "sys"),
			slog.String("tag", tag),
			slog.Any("error", err))
		return UnknownPostCount, nil
	}

	if err := o.trends.SaveFrequency(ctx, &models.TagFrequency{
		TagName:   tag,
		PostCount: count,
		FetchedAt: time.Now(),
	}); err != nil {
		slog.Warn("Failed to persist tag frequency",
			slog.String("type", "sys"),
			slog.String("tag", tag),
			slog.Any("error", err))
	}

	o.cache.Add(tag, count)
	return count, nil
}

func (o *FrequencyOracle) fetch(ctx context.Context, tag string) (int64, error) {
	u := fmt.Sprintf("%s/tags.json?%s", o.baseURL, url.Values{"search[name]": {tag}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("tag index returned status %d", resp.StatusCode)
	}

	var tags []struct {
		Name      string `json:"name"`
		PostCount int64  `json:"post_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return 0, fmt.Errorf("failed to decode tag index response: %w", err)
	}
	if len(tags) == 0 {
		return 0, nil
	}
	return tags[0].PostCount, nil
}
