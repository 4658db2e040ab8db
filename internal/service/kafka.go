package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the trigger consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// CycleRunner runs one ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// TriggerConsumer runs one ingestion cycle per consumed Kafka message.
type TriggerConsumer struct {
	runner     CycleRunner
	logger     *zap.SugaredLogger
	backoff    time.Duration
	maxBackoff time.Duration
	eofWait    time.Duration
}

func NewTriggerConsumer(runner CycleRunner, logger *zap.SugaredLogger) *TriggerConsumer {
	return &TriggerConsumer{
		runner:     runner,
		logger:     logger,
		backoff:    5 * time.Second,
		maxBackoff: 2 * time.Minute,
		eofWait:    2 * time.Second,
	}
}

// HandleMessage triggers a cycle. A busy reconciler means the trigger is skipped.
func (s *TriggerConsumer) HandleMessage(ctx context.Context, m kafka.Message) {
	res, err := s.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrBusy):
		s.logger.Infow("ingestion busy, skipping trigger", "offset", m.Offset, "partition", m.Partition)
	case err != nil:
		s.logger.Errorw("triggered ingestion failed", "error", err, "offset", m.Offset, "cycle_id", res.CycleID)
	default:
		s.logger.Debugw("triggered ingestion done", "offset", m.Offset, "cycle_id", res.CycleID, "persisted", res.PersistedCount)
	}
}

// Internal consumer loop
func (s *TriggerConsumer) consumeLoop(ctx context.Context, reader MessageReader) error {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("consumer context canceled, stopping consumer loop")
				return nil
			}
			if errors.Is(err, io.EOF) {
				s.logger.Debug("Kafka EOF reached, waiting for new messages...")
				if !sleepCtx(ctx, s.eofWait) {
					return nil
				}
				continue
			}
			return fmt.Errorf("error reading message: %w", err)
		}

		s.HandleMessage(ctx, m)
	}
}

// Start consumes until ctx is canceled, reconnecting with exponential backoff.
func (s *TriggerConsumer) Start(ctx context.Context, reader MessageReader) {
	if reader == nil {
		s.logger.Warn("Kafka reader is nil, trigger consumer not started")
		return
	}
	if kr, ok := reader.(*kafka.Reader); ok {
		cfg := kr.Config()
		s.logger.Infow("starting Kafka trigger consumer", "brokers", cfg.Brokers, "topic", cfg.Topic, "groupID", cfg.GroupID)
	}

	backoff := s.backoff
	for {
		if ctx.Err() != nil {
			s.logger.Info("Kafka consumer context canceled, stopping")
			return
		}

		err := s.consumeLoop(ctx, reader)
		if err == nil {
			return
		}

		s.logger.Warnw("Kafka consumer error, retrying", "error", err, "backoff", backoff)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
