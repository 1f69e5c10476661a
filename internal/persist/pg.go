package persist

import (
	"context"
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultPGHost    = "localhost"
	defaultPGPort    = 5432
	defaultPGSSLMode = "disable"
)

// PGConfig defines the PostgreSQL connection.
type PGConfig struct {
	Host     string            `json:"host" yaml:"host"`
	Port     int               `json:"port" yaml:"port"`
	User     string            `json:"user" yaml:"user"`
	Password string            `json:"password" yaml:"password"`
	Database string            `json:"database" yaml:"database"`
	SSLMode  string            `json:"sslMode" yaml:"sslMode"`
	Params   map[string]string `json:"params" yaml:"params"`

	// ConnString overrides everything above when set.
	ConnString string `json:"connString" yaml:"connString"`
}

// Store receives batched writes of bars, trades and equity snapshots.
type Store interface {
	SaveBars(ctx context.Context, records []MarketBarRecord) error
	SaveTrades(ctx context.Context, records []TradeRecord) error
	SaveEquity(ctx context.Context, records []EquitySnapshotRecord) error
	Close() error
}

// PGStore persists records to PostgreSQL through gorm.
type PGStore struct {
	db *gorm.DB
}

// OpenPG connects to PostgreSQL and migrates the record tables.
func OpenPG(cfg PGConfig) (*PGStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrapf(err, "open postgres")
	}
	if err := db.AutoMigrate(&MarketBarRecord{}, &TradeRecord{}, &EquitySnapshotRecord{}); err != nil {
		return nil, errors.Wrapf(err, "migrate record tables")
	}
	return &PGStore{db: db}, nil
}

// SaveBars inserts a bar batch.
func (s *PGStore) SaveBars(ctx context.Context, records []MarketBarRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

// SaveTrades inserts a trade batch.
func (s *PGStore) SaveTrades(ctx context.Context, records []TradeRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

// SaveEquity inserts an equity snapshot batch.
func (s *PGStore) SaveEquity(ctx context.Context, records []EquitySnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

// Close closes the underlying connection pool.
func (s *PGStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (cfg PGConfig) dsn() string {
	if cfg.ConnString != "" {
		return cfg.ConnString
	}

	host := cfg.Host
	if host == "" {
		host = defaultPGHost
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPGPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultPGSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.Database != "" {
		u.Path = "/" + cfg.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range cfg.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
