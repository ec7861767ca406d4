package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/rowflow/component"
	"github.com/kbukum/rowflow/logger"
)

// Component owns the client used as the de-duplication key store of a job.
type Component struct {
	cfg Config
	log *logger.Logger

	mu     sync.RWMutex
	client *Client
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates the key store component. The client is connected by
// Start.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: logger.OrGet(log, "redis")}
}

// Client returns the connected client, or nil before Start.
func (c *Component) Client() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Component) Name() string { return "redis" }

// Start connects and checks the store answers. The client is closed again
// when the check fails.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return err
	}
	keys, _ := client.Unwrap().DBSize(ctx).Result()

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	c.log.Info("Key store ready", logger.Fields("addr", c.cfg.Addr, logger.FieldCount, keys))
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	return client.Close()
}

// Health pings the store. Pool timeouts since start report it degraded:
// dedup batches are then waiting on connections.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusUnhealthy}
	client := c.Client()
	if client == nil {
		h.Message = "key store not connected"
		return h
	}

	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		h.Message = err.Error()
		return h
	}
	latency := time.Since(start)

	h.Status = component.StatusHealthy
	h.Message = fmt.Sprintf("ping %s", latency.Round(time.Microsecond))
	if stats := client.Unwrap().PoolStats(); stats.Timeouts > 0 {
		h.Status = component.StatusDegraded
		h.Message += fmt.Sprintf(", pool timeouts=%d", stats.Timeouts)
	}
	return h
}

// Describe lists the key store address for the job summary.
func (c *Component) Describe() component.Description {
	tls := "off"
	if c.cfg.TLS.IsEnabled() {
		tls = "on"
	}
	return component.Description{
		Name:    "Dedup store",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d pool=%d tls=%s", c.cfg.Addr, c.cfg.DB, c.cfg.PoolSize, tls),
	}
}
