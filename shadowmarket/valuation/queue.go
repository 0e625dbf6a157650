package valuation

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// DefaultTimeout bounds how long a caller waits for the worker. It
// covers queue wait plus the model call itself.
const DefaultTimeout = 30 * time.Second

const queueDepth = 32

type taskKind int

const (
	taskScore taskKind = iota
	taskTag
)

type result struct {
	score      float64
	general    []Prediction
	characters []Prediction
	err        error
}

type task struct {
	kind  taskKind
	data  []byte
	reply chan result
}

// Queue serializes inference calls through one worker goroutine.
// Callers that the worker cannot serve in time get fallback values
// instead of errors, so a slow model never blocks a submission.
type Queue struct {
	client  Client
	timeout time.Duration
	tasks   chan task

	mu  sync.Mutex
	rnd *rand.Rand

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewQueue(client Client) *Queue {
	return NewQueueWithTimeout(client, DefaultTimeout)
}

func NewQueueWithTimeout(client Client, timeout time.Duration) *Queue {
	q := &Queue{
		client:  client,
		timeout: timeout,
		tasks:   make(chan task, queueDepth),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case t := <-q.tasks:
			ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
			var res result
			switch t.kind {
			case taskScore:
				res.score, res.err = q.client.Score(ctx, t.data)
			case taskTag:
				res.general, res.characters, res.err = q.client.Tags(ctx, t.data)
			}
			cancel()
			t.reply <- res
		}
	}
}

func (q *Queue) submit(ctx context.Context, kind taskKind, data []byte) (result, bool) {
	t := task{kind: kind, data: data, reply: make(chan result, 1)}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return result{}, false
	case <-q.stop:
		return result{}, false
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case res := <-t.reply:
		if res.err != nil {
			return result{}, false
		}
		return res, true
	case <-timer.C:
		return result{}, false
	case <-ctx.Done():
		return result{}, false
	}
}

// fallbackScore mimics an average-to-mediocre appraisal when the
// scorer is unreachable, so submissions still clear.
func (q *Queue) fallbackScore() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return 2.0 + q.rnd.Float64()*3.0
}

// ScoreImage returns the model's aesthetic score, or a random fallback
// in [2.0, 5.0) when the model errors or times out.
func (q *Queue) ScoreImage(ctx context.Context, data []byte) float64 {
	res, ok := q.submit(ctx, taskScore, data)
	if !ok {
		score := q.fallbackScore()
		slog.Warn("Scorer unavailable, using fallback",
			slog.String("type", "sys"),
			slog.Float64("score", score))
		return score
	}
	return res.score
}

// TagImage returns filtered general and character tags, or empty lists
// when the tagger errors or times out.
func (q *Queue) TagImage(ctx context.Context, data []byte) (tags, chars []string) {
	res, ok := q.submit(ctx, taskTag, data)
	if !ok {
		slog.Warn("Tagger unavailable, item will carry no tags",
			slog.String("type", "sys"))
		return nil, nil
	}
	return FilterPredictions(res.general, res.characters)
}

// Shutdown stops the worker. In-flight callers receive fallbacks.
func (q *Queue) Shutdown() {
	q.stopOnce.Do(func() { close(q.stop) })
	<-q.done
}
