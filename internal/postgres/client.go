package postgres

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Test hooks (replaceable in unit tests).
var (
	newPool  = pgxpool.NewWithConfig
	pingPool = func(ctx context.Context, p *pgxpool.Pool) error { return p.Ping(ctx) }
)

// Client owns the connection pool. It is constructed once in main() and
// passed explicitly to every component that touches the store.
type Client struct {
	Pool *pgxpool.Pool
}

// Open creates a client from Config (URL + pool options).
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(buildURL(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	// pg_stat_activity visibility and unified timezone.
	if pcfg.ConnConfig != nil {
		if pcfg.ConnConfig.Config.RuntimeParams == nil {
			pcfg.ConnConfig.Config.RuntimeParams = map[string]string{}
		}
		if _, ok := pcfg.ConnConfig.Config.RuntimeParams["application_name"]; !ok {
			pcfg.ConnConfig.Config.RuntimeParams["application_name"] = "faultline"
		}
		if _, ok := pcfg.ConnConfig.Config.RuntimeParams["TimeZone"]; !ok {
			pcfg.ConnConfig.Config.RuntimeParams["TimeZone"] = "UTC"
		}
	}

	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pingPool(pingCtx, pool); err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	return &Client{Pool: pool}, nil
}

func (c *Client) Close() {
	if c != nil && c.Pool != nil {
		c.Pool.Close()
	}
}

// buildURL applies cfg.Params to cfg.URL when params are provided.
func buildURL(cfg Config) string {
	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return ""
	}
	if len(cfg.Params) == 0 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, v := range cfg.Params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
