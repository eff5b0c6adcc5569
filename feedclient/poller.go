package feedclient

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	MinPollInterval     = 6 * time.Second
	MaxPollInterval     = 15 * time.Second
	DefaultPollInterval = 10 * time.Second
)

// ClampInterval keeps a poll interval within [MinPollInterval, MaxPollInterval].
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	case d > MaxPollInterval:
		return MaxPollInterval
	}
	return d
}

// FetchFunc loads rows after cursor, newest first; a nil cursor loads the full range.
type FetchFunc[T models.FeedRow] func(ctx context.Context, cursor *models.FeedCursor) ([]T, error)

// UpdateMode tells OnUpdate whether rows replaced the store or were merged into it.
type UpdateMode string

const (
	UpdateFull  UpdateMode = "full"
	UpdateSince UpdateMode = "since"
)

type PollerOptions struct {
	Interval time.Duration
	// ToDate is the last business day of the watched range. Once it is in
	// the past no new rows can arrive and background polling stops.
	ToDate   string
	Location *time.Location
	Logger   *logrus.Logger
	// OnUpdate runs after rows were applied to the store.
	OnUpdate func(mode UpdateMode, added int)
	// Breaker overrides the default circuit breaker settings.
	Breaker *gobreaker.Settings
	Now     func() time.Time
}

// Poller keeps a Store current. Background ticks fetch since the store's
// cursor, at most one at a time, and only while the view is visible and the
// range can still change. Every fetch takes a sequence number, and a response
// older than the last applied full fetch is dropped.
type Poller[T models.FeedRow] struct {
	store    *Store[T]
	fetch    FetchFunc[T]
	interval time.Duration
	toDate   string
	loc      *time.Location
	logger   *logrus.Logger
	onUpdate func(UpdateMode, int)
	cb       *gobreaker.CircuitBreaker
	now      func() time.Time

	mu          sync.Mutex
	visible     bool
	inFlight    bool
	seq         uint64
	fullApplied uint64
}

func NewPoller[T models.FeedRow](store *Store[T], fetch FetchFunc[T], opts PollerOptions) *Poller[T] {
	p := &Poller[T]{
		store:    store,
		fetch:    fetch,
		interval: ClampInterval(opts.Interval),
		toDate:   opts.ToDate,
		loc:      opts.Location,
		logger:   opts.Logger,
		onUpdate: opts.OnUpdate,
		now:      opts.Now,
		visible:  true,
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if p.logger == nil {
		p.logger = logrus.StandardLogger()
	}
	if p.now == nil {
		p.now = time.Now
	}

	settings := gobreaker.Settings{
		Name:        "feed-poller",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			p.logger.WithFields(logrus.Fields{
				"field": "Poller",
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("feed circuit breaker state changed")
		},
	}
	if opts.Breaker != nil {
		settings = *opts.Breaker
	}
	p.cb = gobreaker.NewCircuitBreaker(settings)
	return p
}

// NewSettlementPoller polls the settlement feed for q.
func NewSettlementPoller(c *Client, q SettlementQuery, store *Store[models.SettlementTransaction], opts PollerOptions) *Poller[models.SettlementTransaction] {
	if opts.ToDate == "" {
		opts.ToDate = q.ToDate
	}
	fetch := func(ctx context.Context, cursor *models.FeedCursor) ([]models.SettlementTransaction, error) {
		page, err := c.Settlements(ctx, q, cursor)
		if err != nil {
			return nil, err
		}
		return page.Data, nil
	}
	return NewPoller(store, fetch, opts)
}

func (p *Poller[T]) Interval() time.Duration { return p.interval }

func (p *Poller[T]) Store() *Store[T] { return p.store }

// SetVisible pauses background polling while the view is hidden.
func (p *Poller[T]) SetVisible(v bool) {
	p.mu.Lock()
	p.visible = v
	p.mu.Unlock()
}

// RangeElapsed reports whether ToDate is before today.
func (p *Poller[T]) RangeElapsed() bool {
	if p.toDate == "" {
		return false
	}
	return p.toDate < p.now().In(p.loc).Format(utils.BusinessDateLayout)
}

func (p *Poller[T]) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// apply stores a response unless a newer full fetch was applied meanwhile.
func (p *Poller[T]) apply(seq uint64, full bool, rows []T) bool {
	p.mu.Lock()
	if seq < p.fullApplied {
		p.mu.Unlock()
		return false
	}
	if full {
		p.fullApplied = seq
	}
	p.mu.Unlock()

	mode, added := UpdateSince, 0
	if full {
		mode = UpdateFull
		p.store.Replace(rows)
		added = len(rows)
	} else {
		added = p.store.Merge(rows)
	}
	if p.onUpdate != nil {
		p.onUpdate(mode, added)
	}
	return true
}

// Refresh runs a full fetch in the foreground and returns its error.
// It bypasses the circuit breaker: an explicit refresh always reaches the server.
func (p *Poller[T]) Refresh(ctx context.Context) error {
	seq := p.nextSeq()
	rows, err := p.fetch(ctx, nil)
	if err != nil {
		return err
	}
	p.apply(seq, true, rows)
	return nil
}

// Tick runs one background poll if the guards allow it. It reports whether a
// fetch was attempted. Errors are logged, never returned.
func (p *Poller[T]) Tick(ctx context.Context) bool {
	p.mu.Lock()
	if !p.visible || p.inFlight {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()
	if p.RangeElapsed() {
		return false
	}

	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return false
	}
	p.inFlight = true
	p.seq++
	seq := p.seq
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	cursor := p.store.Cursor()
	res, err := p.cb.Execute(func() (interface{}, error) {
		return p.fetch(ctx, cursor)
	})
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"field":   "Poller",
			"seq":     seq,
			"since":   cursor != nil,
			"breaker": p.cb.State().String(),
		}).Warn("background poll failed: " + err.Error())
		return true
	}
	rows, _ := res.([]T)
	if !p.apply(seq, cursor == nil, rows) {
		p.logger.WithFields(logrus.Fields{
			"field": "Poller",
			"seq":   seq,
		}).Debug("discarded stale poll response")
	}
	return true
}

// Run polls every interval until ctx is done.
func (p *Poller[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}
