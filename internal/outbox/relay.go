package outbox

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload []byte) error
}

// Observer は送信結果の件数を受け取る（metrics用）
type Observer interface {
	ObserveRelay(result string, n int)
}

type noopObserver struct{}

func (noopObserver) ObserveRelay(string, int) {}

const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay は未送信の outbox を定期的に拾って publish し、送れた分を sent にする。
// 送信は少なくとも1回（publish後のMarkSent失敗で再送がありうる）。
type Relay struct {
	tx        repo.TransactionManager
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	observer  Observer
}

func NewRelay(tx repo.TransactionManager, publisher Publisher, cfg Config, logger *slog.Logger, observer Observer) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Relay{
		tx:        tx,
		publisher: publisher,
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		observer:  observer,
	}
}

// Run は ctx が終わるまで回る。
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay batch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessOnce は1バッチ分を送る。送れた件数を返す。
// 途中で publish に失敗したらそこで止める（順序を崩さない）。
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	var (
		sent   int
		pubErr error
	)
	err := r.tx.WithinTx(ctx, func(repos repo.TxRepos) error {
		events, err := repos.Outbox().FetchPending(ctx, r.batchSize)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			if pubErr = r.publish(ctx, ev); pubErr != nil {
				r.observer.ObserveRelay(ResultFailed, 1)
				r.logger.WarnContext(ctx, "outbox publish failed",
					slog.String("event_id", ev.EventID),
					slog.String("topic", ev.Topic),
					slog.String("error", pubErr.Error()),
				)
				break
			}
			ids = append(ids, ev.ID)
		}

		if err := repos.Outbox().MarkSent(ctx, ids); err != nil {
			return err
		}
		sent = len(ids)
		// 送れた分の sent は commit する
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		r.observer.ObserveRelay(ResultSent, sent)
	}
	return sent, pubErr
}

func (r *Relay) publish(ctx context.Context, ev model.OutboxEvent) error {
	return r.publisher.Publish(ctx, ev.Topic, ev.AggregateID, ev.EventType, []byte(ev.Payload))
}
