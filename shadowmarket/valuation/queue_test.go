package valuation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	score    float64
	scoreErr error
	general  []Prediction
	chars    []Prediction
	tagErr   error
	delay    time.Duration
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (c *stubClient) track() func() {
	n := c.inFlight.Add(1)
	for {
		max := c.maxSeen.Load()
		if n <= max || c.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	return func() { c.inFlight.Add(-1) }
}

func (c *stubClient) Score(ctx context.Context, _ []byte) (float64, error) {
	defer c.track()()
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return c.score, c.scoreErr
}

func (c *stubClient) Tags(ctx context.Context, _ []byte) ([]Prediction, []Prediction, error) {
	defer c.track()()
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return c.general, c.chars, c.tagErr
}

func TestFilterPredictions(t *testing.T) {
	general := []Prediction{
		{Label: "weak", Confidence: 0.2},
		{Label: "cat_ears", Confidence: 0.9},
		{Label: "borderline", Confidence: 0.35},
		{Label: "solo", Confidence: 0.6},
	}
	chars := []Prediction{
		{Label: "maybe_chara", Confidence: 0.5},
		{Label: "sure_chara", Confidence: 0.95},
	}

	tags, characters := FilterPredictions(general, chars)

	// Thresholds are exclusive and output is confidence-ordered
	assert.Equal(t, []string{"cat_ears", "solo"}, tags)
	assert.Equal(t, []string{"sure_chara"}, characters)
}

func TestFilterPredictionsCapsGeneral(t *testing.T) {
	general := make([]Prediction, 30)
	for i := range general {
		general[i] = Prediction{Label: string(rune('a' + i)), Confidence: 0.99 - float64(i)*0.01}
	}

	tags, _ := FilterPredictions(general, nil)
	assert.Len(t, tags, MaxGeneralTags)
	assert.Equal(t, "a", tags[0])
}

func TestScoreImagePassesThrough(t *testing.T) {
	client := &stubClient{score: 8.4}
	q := NewQueue(client)
	defer q.Shutdown()

	score := q.ScoreImage(context.Background(), []byte("img"))
	assert.Equal(t, 8.4, score)
}

func TestScoreImageFallbackOnError(t *testing.T) {
	client := &stubClient{scoreErr: errors.New("model down")}
	q := NewQueue(client)
	defer q.Shutdown()

	score := q.ScoreImage(context.Background(), []byte("img"))
	assert.GreaterOrEqual(t, score, 2.0)
	assert.Less(t, score, 5.0)
}

func TestScoreImageFallbackOnTimeout(t *testing.T) {
	client := &stubClient{score: 9.9, delay: time.Second}
	q := NewQueueWithTimeout(client, 50*time.Millisecond)
	defer q.Shutdown()

	score := q.ScoreImage(context.Background(), []byte("img"))
	assert.GreaterOrEqual(t, score, 2.0)
	assert.Less(t, score, 5.0)
}

func TestTagImagePassesThrough(t *testing.T) {
	client := &stubClient{
		general: []Prediction{{Label: "solo", Confidence: 0.8}},
		chars:   []Prediction{{Label: "hero", Confidence: 0.9}},
	}
	q := NewQueue(client)
	defer q.Shutdown()

	tags, chars := q.TagImage(context.Background(), []byte("img"))
	assert.Equal(t, []string{"solo"}, tags)
	assert.Equal(t, []string{"hero"}, chars)
}

func TestTagImageFallbackEmpty(t *testing.T) {
	client := &stubClient{tagErr: errors.New("model down")}
	q := NewQueue(client)
	defer q.Shutdown()

	tags, chars := q.TagImage(context.Background(), []byte("img"))
	assert.Empty(t, tags)
	assert.Empty(t, chars)
}

func TestQueueSerializesCalls(t *testing.T) {
	client := &stubClient{score: 5.0, delay: 20 * time.Millisecond}
	q := NewQueue(client)
	defer q.Shutdown()

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			q.ScoreImage(context.Background(), []byte("img"))
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	require.Equal(t, int64(4), client.calls.Load())
	assert.Equal(t, int64(1), client.maxSeen.Load())
}

func TestQueueCancelledCaller(t *testing.T) {
	client := &stubClient{score: 5.0, delay: 200 * time.Millisecond}
	q := NewQueue(client)
	defer q.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	score := q.ScoreImage(ctx, []byte("img"))
	assert.GreaterOrEqual(t, score, 2.0)
	assert.Less(t, score, 5.0)
}
