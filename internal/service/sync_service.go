package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trade_sync/internal/cluster"
	"trade_sync/internal/domain"
	"trade_sync/internal/infra"
	"trade_sync/internal/infra/storage"

	"github.com/shopspring/decimal"
)

const watermarkKey = "orders_watermark"

// SyncService is the orchestration boundary between upstream state and the
// persisted Order/Trade/Position records. One background task owns the
// stream inbox; scheduled and manual syncs may run concurrently with it,
// serializing writes per underlying rather than globally.
type SyncService struct {
	client    domain.BrokerageClient
	store     *storage.Storage
	breaker   *infra.CircuitBreaker
	engine    *cluster.Engine
	quotes    *infra.TTLCache[string, decimal.Decimal]
	publisher domain.EventPublisher

	inbox        chan domain.StreamEvent
	pollInterval time.Duration
	quoteTTL     time.Duration

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	mu         sync.Mutex
	watermark  time.Time
	lastSyncAt time.Time
	lastErr    error
	syncing    bool

	logger *slog.Logger
}

// Options bundles the coordinator's collaborators and tuning.
type Options struct {
	Client       domain.BrokerageClient
	Store        *storage.Storage
	Breaker      *infra.CircuitBreaker
	Engine       *cluster.Engine
	Quotes       *infra.TTLCache[string, decimal.Decimal]
	Publisher    domain.EventPublisher
	PollInterval time.Duration
	QuoteTTL     time.Duration
	InboxSize    int
}

// NewSyncService wires a coordinator. The cache and breaker are owned by the
// coordinator's lifecycle: constructed at startup, never ambient globals.
func NewSyncService(opts Options) *SyncService {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Minute
	}
	if opts.QuoteTTL <= 0 {
		opts.QuoteTTL = 5 * time.Second
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}

	s := &SyncService{
		client:       opts.Client,
		store:        opts.Store,
		breaker:      opts.Breaker,
		engine:       opts.Engine,
		quotes:       opts.Quotes,
		publisher:    opts.Publisher,
		inbox:        make(chan domain.StreamEvent, opts.InboxSize),
		pollInterval: opts.PollInterval,
		quoteTTL:     opts.QuoteTTL,
		locks:        make(map[string]*sync.Mutex),
		logger:       slog.Default().With("module", "sync_service"),
	}
	s.restoreWatermark()
	return s
}

// Inbox is where the stream worker delivers normalized events.
func (s *SyncService) Inbox() chan<- domain.StreamEvent {
	return s.inbox
}

// Run owns the stream consumer loop and the poll schedule. It blocks until
// ctx is cancelled.
func (s *SyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-s.inbox:
			s.handleStreamEvent(ev)

		case <-ticker.C:
			if err := s.SyncOrders(ctx); err != nil {
				s.logger.Warn("Scheduled order sync failed", slog.Any("error", err))
			}
			if err := s.SyncPositions(ctx); err != nil {
				s.logger.Warn("Scheduled position sync failed", slog.Any("error", err))
			}
		}
	}
}

func (s *SyncService) handleStreamEvent(ev domain.StreamEvent) {
	infra.GlobalMetrics.RecordEvent()

	switch ev.Type {
	case domain.StreamEventOrder:
		if ev.Order != nil {
			s.applyStreamOrder(ev.Order)
		}

	case domain.StreamEventQuote:
		// Write-through invalidation: the next quote read refetches.
		s.quotes.Invalidate(ev.Symbol)
		if s.publisher != nil && !ev.Price.IsZero() {
			s.publisher.PublishPriceUpdate(ev.Symbol, ev.Price)
		}

	case domain.StreamEventHeartbeat:
		// Connectivity evidence only.
	}
}

// applyStreamOrder upserts a single live order update and re-clusters its
// group so the trade it belongs to stays consistent.
func (s *SyncService) applyStreamOrder(order *domain.Order) {
	lock := s.lockFor(order.Underlying)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.UpsertOrder(order); err != nil {
		s.logger.Warn("Failed to persist stream order",
			slog.String("upstream_id", order.UpstreamID), slog.Any("error", err))
		return
	}

	if err := s.reclusterGroup(order.Group()); err != nil {
		s.logger.Warn("Failed to re-cluster group",
			slog.String("underlying", order.Underlying), slog.Any("error", err))
	}

	if s.publisher != nil {
		s.publisher.PublishOrderUpdate(order)
	}
}

// reclusterGroup re-runs clustering over one (underlying, expiry) group.
// Caller must hold the underlying's lock.
func (s *SyncService) reclusterGroup(key domain.GroupKey) error {
	stored, err := s.store.GetOrdersByGroup(key.Underlying, key.Expiry)
	if err != nil {
		return err
	}

	result := s.engine.Cluster(stored, assignments(stored))
	return s.persistResult(result)
}

// persistResult upserts clustered orders and trades. Individual row failures
// are logged and skipped; they never abort the batch.
func (s *SyncService) persistResult(result cluster.Result) error {
	for i := range result.Orders {
		if err := s.store.UpsertOrder(&result.Orders[i]); err != nil {
			s.logger.Warn("Failed to upsert order",
				slog.String("upstream_id", result.Orders[i].UpstreamID), slog.Any("error", err))
		}
	}
	for i := range result.Trades {
		if err := s.store.UpsertTrade(&result.Trades[i]); err != nil {
			s.logger.Warn("Failed to upsert trade",
				slog.String("trade_id", result.Trades[i].ID), slog.Any("error", err))
		}
	}
	infra.GlobalMetrics.RecordTradesClustered(len(result.Trades))
	return nil
}

// SyncOrders fetches new/updated orders since the watermark, re-clusters
// every touched group, and upserts the results. A fetch failure aborts the
// batch and leaves the watermark unadvanced so the next attempt retries the
// same range. Repeated runs over overlapping ranges are idempotent.
func (s *SyncService) SyncOrders(ctx context.Context) error {
	s.mu.Lock()
	since := s.watermark
	s.mu.Unlock()

	var fetched []domain.Order
	page := 1
	for {
		var (
			pageOrders []domain.Order
			hasMore    bool
		)
		err := s.breaker.Execute(func() error {
			var opErr error
			pageOrders, hasMore, opErr = s.client.ListOrders(ctx, since, page)
			return opErr
		})
		s.publishCircuitState()
		if err != nil {
			s.recordFailure(err)
			return err
		}

		fetched = append(fetched, pageOrders...)
		if !hasMore {
			break
		}
		page++

		select {
		case <-ctx.Done():
			s.recordFailure(ctx.Err())
			return ctx.Err()
		default:
		}
	}

	if err := s.persistFetched(ctx, fetched); err != nil {
		s.recordFailure(err)
		return err
	}

	s.advanceWatermark(fetched)
	s.recordSuccess(len(fetched))
	return nil
}

// persistFetched re-clusters the union of fetched orders and the stored
// orders of every touched group, one underlying at a time under its lock.
func (s *SyncService) persistFetched(ctx context.Context, fetched []domain.Order) error {
	byUnderlying := make(map[string]map[string]bool) // underlying -> expiries
	for _, o := range fetched {
		if byUnderlying[o.Underlying] == nil {
			byUnderlying[o.Underlying] = make(map[string]bool)
		}
		byUnderlying[o.Underlying][o.Expiry] = true
	}

	for underlying, expiries := range byUnderlying {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lock := s.lockFor(underlying)
		lock.Lock()

		for expiry := range expiries {
			stored, err := s.store.GetOrdersByGroup(underlying, expiry)
			if err != nil {
				lock.Unlock()
				return err
			}

			union := mergeOrders(stored, filterGroup(fetched, underlying, expiry))
			result := s.engine.Cluster(union, assignments(stored))
			if err := s.persistResult(result); err != nil {
				lock.Unlock()
				return err
			}

			if s.publisher != nil {
				for i := range result.Orders {
					s.publisher.PublishOrderUpdate(&result.Orders[i])
				}
			}
		}

		lock.Unlock()
	}
	return nil
}

// SyncPositions fetches the full open-position set and atomically
// supersedes the stored one. A fetch failure makes no writes at all —
// previously stored open positions stay open.
func (s *SyncService) SyncPositions(ctx context.Context) error {
	var positions []domain.Position
	err := s.breaker.Execute(func() error {
		var opErr error
		positions, opErr = s.client.ListPositions(ctx)
		return opErr
	})
	s.publishCircuitState()
	if err != nil {
		s.recordFailure(err)
		return err
	}

	for i := range positions {
		// Weak back-reference: look up only, the position's lifecycle stays
		// independent of the trade's.
		if order, err := s.store.GetLatestOrderForSymbol(positions[i].Symbol); err == nil && order != nil {
			positions[i].TradeID = order.TradeID
		}

		if price, ok := s.GetQuote(ctx, positions[i].Symbol); ok {
			positions[i].CurrentPrice = price
			positions[i].RefreshPL()
		}
	}

	if err := s.store.ReplaceOpenPositions(positions); err != nil {
		s.recordFailure(err)
		return err
	}

	s.recordSuccess(0)
	return nil
}

// GetQuote reads through the TTL cache to the venue. Misses and upstream
// failures both report absence; the cache is advisory, never a correctness
// boundary.
func (s *SyncService) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if price, ok := s.quotes.Get(symbol); ok {
		infra.GlobalMetrics.RecordCacheHit()
		return price, true
	}
	infra.GlobalMetrics.RecordCacheMiss()

	var quotes map[string]decimal.Decimal
	err := s.breaker.Execute(func() error {
		var opErr error
		quotes, opErr = s.client.GetQuotes(ctx, []string{symbol})
		return opErr
	})
	s.publishCircuitState()
	if err != nil {
		return decimal.Zero, false
	}

	price, ok := quotes[symbol]
	if !ok {
		return decimal.Zero, false
	}
	s.quotes.Set(symbol, price, s.quoteTTL)
	return price, true
}

// GetTrades serves the read query surface; safe to call during a sync.
func (s *SyncService) GetTrades(filter domain.TradeFilter) ([]domain.Trade, error) {
	return s.store.GetTrades(filter)
}

// GetTradeStats serves summary statistics; safe to call during a sync.
func (s *SyncService) GetTradeStats(filter domain.TradeFilter) (*domain.TradeStats, error) {
	return s.store.GetTradeStats(filter)
}

// GetOpenPositions returns the stored open set.
func (s *SyncService) GetOpenPositions() ([]domain.Position, error) {
	return s.store.GetOpenPositions()
}

// TriggerSync runs a full manual synchronization. Only one manual run at a
// time; overlapping triggers get ErrSyncInProgress.
func (s *SyncService) TriggerSync(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return domain.ErrSyncInProgress
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	if err := s.SyncOrders(ctx); err != nil {
		return err
	}
	return s.SyncPositions(ctx)
}

// Status describes sync health for the query surface. It lets callers tell
// "no data yet" apart from "sync currently failing".
type Status struct {
	CircuitState string                `json:"circuit_state"`
	Watermark    time.Time             `json:"watermark"`
	LastSyncAt   time.Time             `json:"last_sync_at"`
	LastError    string                `json:"last_error,omitempty"`
	Syncing      bool                  `json:"syncing"`
	Metrics      infra.MetricsSnapshot `json:"metrics"`
}

// Status reports current sync health.
func (s *SyncService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		CircuitState: s.breaker.State().String(),
		Watermark:    s.watermark,
		LastSyncAt:   s.lastSyncAt,
		Syncing:      s.syncing,
		Metrics:      infra.GlobalMetrics.Snapshot(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *SyncService) lockFor(underlying string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[underlying]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[underlying] = lock
	}
	return lock
}

func (s *SyncService) publishCircuitState() {
	infra.GlobalMetrics.SetCircuitState(s.breaker.State() == infra.StateOpen)
}

func (s *SyncService) recordFailure(err error) {
	infra.GlobalMetrics.RecordSyncFailure()
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *SyncService) recordSuccess(orders int) {
	infra.GlobalMetrics.RecordSyncRun()
	infra.GlobalMetrics.RecordOrdersSynced(orders)
	s.mu.Lock()
	s.lastErr = nil
	s.lastSyncAt = time.Now()
	s.mu.Unlock()
}

// advanceWatermark moves the watermark to the newest fetched submission
// time. No fetched orders leave it untouched.
func (s *SyncService) advanceWatermark(fetched []domain.Order) {
	var newest time.Time
	for _, o := range fetched {
		if o.SubmittedAt.After(newest) {
			newest = o.SubmittedAt
		}
	}
	if newest.IsZero() {
		return
	}

	s.mu.Lock()
	s.watermark = newest
	s.mu.Unlock()

	if err := s.store.SaveSyncState(watermarkKey, newest.UTC().Format(time.RFC3339Nano)); err != nil {
		s.logger.Warn("Failed to persist watermark", slog.Any("error", err))
	}
}

func (s *SyncService) restoreWatermark() {
	raw, err := s.store.LoadSyncState(watermarkKey)
	if err != nil || raw == "" {
		return
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		s.watermark = t
	}
}

// assignments extracts the order -> trade ID map from stored rows.
func assignments(stored []domain.Order) map[string]string {
	m := make(map[string]string, len(stored))
	for _, o := range stored {
		if o.TradeID != "" {
			m[o.UpstreamID] = o.TradeID
		}
	}
	return m
}

// mergeOrders unions stored and fetched orders by upstream ID, preferring
// the higher EventSeq (last writer wins).
func mergeOrders(stored, fetched []domain.Order) []domain.Order {
	byID := make(map[string]domain.Order, len(stored)+len(fetched))
	for _, o := range stored {
		byID[o.UpstreamID] = o
	}
	for _, o := range fetched {
		if cur, ok := byID[o.UpstreamID]; ok {
			if cur.EventSeq > o.EventSeq {
				continue
			}
			// Keep the assignment already on record.
			if o.TradeID == "" {
				o.TradeID = cur.TradeID
			}
		}
		byID[o.UpstreamID] = o
	}

	out := make([]domain.Order, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	return out
}

func filterGroup(orders []domain.Order, underlying, expiry string) []domain.Order {
	var out []domain.Order
	for _, o := range orders {
		if o.Underlying == underlying && o.Expiry == expiry {
			out = append(out, o)
		}
	}
	return out
}
