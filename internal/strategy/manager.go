package strategy

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"futures-trader/internal/market"
)

// ManagerConfig gates signal emission.
type ManagerConfig struct {
	Cooldown       time.Duration // measured from the last accepted signal
	MinConfidence  float64       // produced signals below this are discarded
	TrendThreshold float64       // trend confidence needed for trend-based selection
	Trending       string        // strategy consulted when trending, default ICT
	Ranging        string        // strategy consulted otherwise, default DELTA
	Now            func() time.Time
}

// Manager composes strategies under a single contract: at most one signal
// per evaluation cycle. A trend detector picks which strategy to consult
// each cycle instead of running all of them and merging, so two strategies
// can never fire conflicting signals at the same instant. Evaluation cycles
// are serialized by a mutex, which also covers strategies that keep rolling
// state of their own.
type Manager struct {
	cfg        ManagerConfig
	log        *logrus.Logger
	trend      *TrendDetector
	strategies []Strategy
	byName     map[string]Strategy

	mu           sync.Mutex
	lastAccepted time.Time
}

// NewManager applies defaults: 60s cooldown, 0.85 minimum confidence, 0.6
// trend threshold, ICT when trending and DELTA otherwise.
func NewManager(cfg ManagerConfig, log *logrus.Logger, strategies ...Strategy) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.85
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = 0.6
	}
	if cfg.Trending == "" {
		cfg.Trending = "ICT"
	}
	if cfg.Ranging == "" {
		cfg.Ranging = "DELTA"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		cfg:        cfg,
		log:        log,
		trend:      NewTrendDetector(),
		strategies: strategies,
		byName:     make(map[string]Strategy, len(strategies)),
	}
	for _, s := range strategies {
		m.byName[s.Name()] = s
	}
	return m
}

// Evaluate runs one cycle: cooldown gate, strategy selection, analysis,
// confidence gate. Returns nil when no signal is emitted. A discarded
// low-confidence signal does not reset the cooldown; only accepted signals
// do.
func (m *Manager) Evaluate(snap *market.Snapshot) *Signal {
	if len(m.strategies) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	if !m.lastAccepted.IsZero() && now.Sub(m.lastAccepted) < m.cfg.Cooldown {
		return nil
	}

	strat := m.selectStrategy(snap)
	sig := m.analyze(strat, snap)
	if sig == nil {
		return nil
	}
	if sig.Confidence < m.cfg.MinConfidence {
		m.log.WithFields(logrus.Fields{
			"strategy":   sig.Strategy,
			"confidence": sig.Confidence,
			"minimum":    m.cfg.MinConfidence,
		}).Info("🚫 Signal below confidence threshold, discarded")
		return nil
	}

	m.lastAccepted = now
	m.log.WithFields(logrus.Fields{
		"strategy":   sig.Strategy,
		"direction":  sig.Direction,
		"confidence": sig.Confidence,
		"reason":     sig.Reason,
	}).Info("✅ Signal accepted")
	return sig
}

// CooldownRemaining reports how long until the next signal may be accepted.
func (m *Manager) CooldownRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastAccepted.IsZero() {
		return 0
	}
	rem := m.cfg.Cooldown - m.cfg.Now().Sub(m.lastAccepted)
	if rem < 0 {
		return 0
	}
	return rem
}

// selectStrategy picks one strategy for this cycle by trend state. A single
// registered strategy is always consulted directly.
func (m *Manager) selectStrategy(snap *market.Snapshot) Strategy {
	if len(m.strategies) == 1 {
		return m.strategies[0]
	}
	name := m.cfg.Ranging
	if t := m.trend.Detect(snap); !t.Neutral() && t.Confidence >= m.cfg.TrendThreshold {
		name = m.cfg.Trending
	}
	if s, ok := m.byName[name]; ok {
		return s
	}
	return m.strategies[0]
}

// analyze shields the caller from a panicking strategy: the panic is logged
// with the strategy identity and the cycle produces no signal.
func (m *Manager) analyze(s Strategy, snap *market.Snapshot) (sig *Signal) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithFields(logrus.Fields{
				"strategy": s.Name(),
				"panic":    r,
			}).Error("Strategy panicked, treating as no signal")
			sig = nil
		}
	}()
	return s.Analyze(snap)
}
