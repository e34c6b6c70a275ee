// Package events carries commit notifications between an index writer and
// the query engines serving the same index directory.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
)

// CommitEvent announces that a new generation is live in Dir.
type CommitEvent struct {
	Dir         string    `json:"dir"`
	Generation  uint64    `json:"generation"`
	BatchID     string    `json:"batch_id,omitempty"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	CommittedAt time.Time `json:"committed_at"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier publishes commit events, retrying transient failures.
type KafkaNotifier struct {
	pub    Publisher
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewKafkaNotifier(pub Publisher, retry resilience.RetryConfig) *KafkaNotifier {
	return &KafkaNotifier{
		pub:    pub,
		retry:  retry,
		logger: slog.Default().With("component", "commit-notifier"),
	}
}

// NotifyCommit publishes ev keyed by generation.
func (n *KafkaNotifier) NotifyCommit(ctx context.Context, ev CommitEvent) error {
	key := strconv.FormatUint(ev.Generation, 10)
	err := resilience.Retry(ctx, "publish commit event", n.retry, func() error {
		return n.pub.Publish(ctx, kafka.Event{Key: key, Value: ev})
	})
	if err != nil {
		return fmt.Errorf("notifying commit of generation %d: %w", ev.Generation, err)
	}
	n.logger.Info("commit published", "generation", ev.Generation, "documents", ev.Documents)
	return nil
}

// Reloader is satisfied by the query engine.
type Reloader interface {
	Reload() error
	Generation() uint64
}

// ReloadHandler returns a message handler that reloads r whenever an event
// announces a generation newer than the one r is serving. Events for other
// directories are ignored when dir is non-empty.
func ReloadHandler(r Reloader, dir string) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-handler")
	return func(ctx context.Context, key, value []byte) error {
		ev, err := kafka.DecodeJSON[CommitEvent](value)
		if err != nil {
			return err
		}
		if dir != "" && ev.Dir != "" && ev.Dir != dir {
			logger.Debug("ignoring commit for another index", "dir", ev.Dir)
			return nil
		}
		if ev.Generation <= r.Generation() {
			logger.Debug("snapshot already current", "generation", ev.Generation)
			return nil
		}
		if err := r.Reload(); err != nil {
			return fmt.Errorf("reloading for generation %d: %w", ev.Generation, err)
		}
		logger.Info("snapshot reloaded", "generation", r.Generation())
		return nil
	}
}

// NewReloadConsumer subscribes r to the commit topic. Every host joins its
// own consumer group so each one sees every commit.
func NewReloadConsumer(cfg config.KafkaConfig, r Reloader, dir string) *kafka.Consumer {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	group := fmt.Sprintf("%s-%s", cfg.ConsumerGroup, host)
	return kafka.NewConsumer(cfg.Brokers, group, cfg.Topics.IndexCommits, ReloadHandler(r, dir))
}
