package persist

import (
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"prism/internal/analytics"
	"prism/internal/model"
	"prism/pkg/conn"
)

// FillRecord is the durable row for one execution.
type FillRecord struct {
	ID           uint   `gorm:"primaryKey"`
	FillID       string `gorm:"uniqueIndex;size:64"`
	OrderID      string `gorm:"index;size:64"`
	MakerOrderID string `gorm:"size:64"`
	Symbol       string `gorm:"index;size:32"`
	Side         string `gorm:"size:8"`
	Quantity     float64
	Price        float64
	Liquidity    string `gorm:"size:8"`
	ExecutedAt   time.Time
}

func (FillRecord) TableName() string { return "prism_fills" }

// MarketStateRecord is a periodic snapshot of one symbol's market state.
type MarketStateRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Symbol     string `gorm:"index;size:32"`
	LastPrice  float64
	Volume     float64
	Volatility float64
	Momentum   float64
	Liquidity  float64
	Spread     float64
	RecordedAt time.Time
}

func (MarketStateRecord) TableName() string { return "prism_market_states" }

// AnalyticsRecord is a periodic snapshot of one symbol's microstructure
// metrics.
type AnalyticsRecord struct {
	ID                 uint   `gorm:"primaryKey"`
	Symbol             string `gorm:"index;size:32"`
	Spread             float64
	MidPrice           float64
	Imbalance          float64
	BidDepth           float64
	AskDepth           float64
	EffectiveSpread    float64
	PriceImpact        float64
	RealizedVolatility float64
	FillCount          int
	Volume             float64
	Volatility         float64
	Momentum           float64
	LastPrice          float64
	RecordedAt         time.Time
}

func (AnalyticsRecord) TableName() string { return "prism_analytics" }

// PostgresStore persists simulation output through gorm with a buffered
// background writer.
type PostgresStore struct {
	db *gorm.DB
	w  *writer
}

// NewPostgresStore connects, migrates the schema and starts the writer.
func NewPostgresStore(cfg Config) (*PostgresStore, error) {
	cfg = cfg.withDefaults()

	db, err := conn.Open(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&FillRecord{}, &MarketStateRecord{}, &AnalyticsRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate persist schema")
	}

	s := &PostgresStore{db: db}
	s.w = newWriter(cfg.QueueSize, func(record any) error {
		return s.db.Create(record).Error
	})
	return s, nil
}

func (s *PostgresStore) StoreFill(f model.Fill) error {
	return s.w.tryEnqueue(&FillRecord{
		FillID:       f.ID,
		OrderID:      f.OrderID,
		MakerOrderID: f.MakerOrderID,
		Symbol:       f.Symbol,
		Side:         f.Side.String(),
		Quantity:     f.Quantity,
		Price:        f.Price,
		Liquidity:    f.Liquidity.String(),
		ExecutedAt:   f.Timestamp,
	})
}

func (s *PostgresStore) StoreMarketState(state model.MarketState, spread float64) error {
	return s.w.tryEnqueue(&MarketStateRecord{
		Symbol:     state.Symbol,
		LastPrice:  state.LastPrice,
		Volume:     state.Volume,
		Volatility: state.Volatility,
		Momentum:   state.Momentum,
		Liquidity:  state.Liquidity,
		Spread:     spread,
		RecordedAt: time.Now().UTC(),
	})
}

func (s *PostgresStore) StoreAnalytics(symbol string, m analytics.Metrics, state model.MarketState) error {
	return s.w.tryEnqueue(&AnalyticsRecord{
		Symbol:             symbol,
		Spread:             m.Spread,
		MidPrice:           m.MidPrice,
		Imbalance:          m.Imbalance,
		BidDepth:           m.BidDepth,
		AskDepth:           m.AskDepth,
		EffectiveSpread:    m.EffectiveSpread,
		PriceImpact:        m.PriceImpact,
		RealizedVolatility: m.RealizedVolatility,
		FillCount:          m.FillCount,
		Volume:             m.Volume,
		Volatility:         state.Volatility,
		Momentum:           state.Momentum,
		LastPrice:          state.LastPrice,
		RecordedAt:         time.Now().UTC(),
	})
}

// Close flushes queued records and releases the connection pool.
func (s *PostgresStore) Close() error {
	s.w.close()
	return conn.Close(s.db)
}
