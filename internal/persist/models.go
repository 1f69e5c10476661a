package persist

// MarketBarRecord is one persisted OHLCV bar.
type MarketBarRecord struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	RunID     string  `gorm:"size:36;index:idx_bars_run_ts"`
	Symbol    string  `gorm:"size:32;index"`
	Timestamp int64   `gorm:"index:idx_bars_run_ts"`
	Open      float64 `gorm:"not null"`
	High      float64 `gorm:"not null"`
	Low       float64 `gorm:"not null"`
	Close     float64 `gorm:"not null"`
	Volume    float64 `gorm:"not null"`
}

// TableName maps the model to its table.
func (MarketBarRecord) TableName() string { return "market_bars" }

// TradeRecord is one persisted fill. Metadata carries extensible JSON
// attached by the writer, never read back on the hot path.
type TradeRecord struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	RunID     string  `gorm:"size:36;index"`
	FillID    uint64  `gorm:"uniqueIndex:idx_trades_run_fill"`
	OrderID   uint64  `gorm:"index"`
	Symbol    string  `gorm:"size:32;index"`
	Side      string  `gorm:"size:8"`
	Timestamp int64   `gorm:"index"`
	Price     float64 `gorm:"not null"`
	Qty       float64 `gorm:"not null"`
	Fee       float64 `gorm:"not null"`
	Metadata  string  `gorm:"type:jsonb"`
}

// TableName maps the model to its table.
func (TradeRecord) TableName() string { return "trades" }

// EquitySnapshotRecord is one persisted equity observation.
type EquitySnapshotRecord struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement"`
	RunID       string  `gorm:"size:36;index:idx_equity_run_ts"`
	Timestamp   int64   `gorm:"index:idx_equity_run_ts"`
	Equity      float64 `gorm:"not null"`
	Cash        float64 `gorm:"not null"`
	Drawdown    float64 `gorm:"not null"`
	RealizedPnL float64 `gorm:"not null"`
}

// TableName maps the model to its table.
func (EquitySnapshotRecord) TableName() string { return "equity_snapshots" }
