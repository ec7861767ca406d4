package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/util"
	"github.com/kbukum/rowflow/validation"
)

// DefaultDedupTTL is how long a claimed key suppresses duplicates.
const DefaultDedupTTL = 24 * time.Hour

// DedupConfig configures a Dedup operation.
type DedupConfig struct {
	operation.DeferredConfig `yaml:",inline" mapstructure:",squash"`

	// Fields are the row values forming the de-duplication key.
	Fields []string `yaml:"fields" mapstructure:"fields"`
	// Prefix namespaces the keys, e.g. the job name.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	// TTL is the lifetime of a claimed key.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ApplyDefaults fills zero values.
func (c *DedupConfig) ApplyDefaults() {
	c.DeferredConfig.ApplyDefaults()
	c.Fields = util.Unique(c.Fields)
	if c.Prefix == "" {
		c.Prefix = "rowflow:dedup"
	}
	if c.TTL <= 0 {
		c.TTL = DefaultDedupTTL
	}
}

// Validate checks the configuration.
func (c *DedupConfig) Validate() error {
	if err := c.DeferredConfig.Validate(); err != nil {
		return err
	}
	return validation.New().
		Custom(len(c.Fields) > 0, "fields", "at least one key field is required").
		PositiveDuration("ttl", c.TTL).
		Validate()
}

// Dedup removes rows whose key was already seen, in this batch, in an
// earlier batch, or by an earlier run within TTL. Keys are claimed with one
// pipelined SETNX per flushed batch.
type Dedup struct {
	*operation.Deferred
	client *Client
	cfg    DedupConfig
}

// NewDedup creates a de-duplication operation backed by client.
func NewDedup(client *Client, cfg DedupConfig) *Dedup {
	cfg.ApplyDefaults()
	d := &Dedup{client: client, cfg: cfg}
	d.Deferred = operation.NewDeferred("dedup("+strings.Join(cfg.Fields, ",")+")", cfg.DeferredConfig, d.claim)
	return d
}

func (d *Dedup) Prepare(ctx context.Context) error {
	if d.client == nil {
		return errors.MissingField(d.Name() + ".client")
	}
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	return d.Deferred.Prepare(ctx)
}

// Key returns the redis key identifying r.
func (d *Dedup) Key(r *row.Row) string {
	var b strings.Builder
	b.WriteString(d.cfg.Prefix)
	for _, f := range d.cfg.Fields {
		b.WriteByte(':')
		if v, ok := r.Lookup(f); ok && v != nil {
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}

func (d *Dedup) claim(ctx context.Context, batch []*row.Row) error {
	keys := make([]string, 0, len(batch))
	owners := make([]*row.Row, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	var dups []*row.Row

	for _, r := range batch {
		if !r.IsNormal() {
			continue
		}
		k := d.Key(r)
		if seen[k] {
			dups = append(dups, r)
			continue
		}
		seen[k] = true
		keys = append(keys, k)
		owners = append(owners, r)
	}

	claimed, err := d.client.SetNXMany(ctx, keys, 1, d.cfg.TTL)
	if err != nil {
		return err
	}
	var unique int64
	for i, ok := range claimed {
		if !ok {
			dups = append(dups, owners[i])
			continue
		}
		unique++
	}

	d.Stats().Add("unique", unique)
	if len(dups) == 0 {
		return nil
	}
	d.Stats().Add("duplicates", int64(len(dups)))
	if h, ok := operation.HostFrom(ctx); ok {
		h.RemoveRows(dups...)
		return nil
	}
	for _, r := range dups {
		r.Remove()
	}
	return nil
}
