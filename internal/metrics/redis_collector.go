package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const ledgerScanBound = 1000

type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	ledgerDepthDesc *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		ledgerDepthDesc: prometheus.NewDesc(
			"renderq_ledger_requests",
			"Tracked conversion requests in the ledger by status.",
			[]string{"status"},
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ledgerDepthDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var keys []string
	iter := c.rdb.Scan(ctx, 0, "renderq:req:*", ledgerScanBound).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= ledgerScanBound {
			break
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}

	pipe := c.rdb.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		gets[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	counts := map[string]int{}
	for _, cmd := range gets {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		var rec struct {
			Status string `json:"status"`
		}
		if json.Unmarshal([]byte(raw), &rec) != nil || rec.Status == "" {
			continue
		}
		counts[rec.Status]++
	}

	for status, n := range counts {
		emitGauge(ch, c.ledgerDepthDesc, float64(n), status)
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
