package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bscolinos/ford-fleet-streaming/internal/detect"
	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
	"github.com/bscolinos/ford-fleet-streaming/internal/metrics"
	"github.com/bscolinos/ford-fleet-streaming/internal/supervisor"
)

// MessageReader is the slice of kafka.Reader the pipeline consumes.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Flusher durably writes one batch. Implemented by sink.Sink.
type Flusher interface {
	Flush(ctx context.Context, batch *domain.Batch) error
}

// Pipeline is the single thread of control: poll, decode, detect,
// accumulate, flush. Nothing here runs concurrently with anything else;
// the only suspension points are the stream poll and the storage write.
type Pipeline struct {
	reader      MessageReader
	detector    *detect.Detector
	batcher     *Batcher
	sink        Flusher
	storageSup  *supervisor.Supervisor
	pollTimeout time.Duration
	lg          *zap.Logger
}

func New(
	reader MessageReader,
	detector *detect.Detector,
	batcher *Batcher,
	sink Flusher,
	storageSup *supervisor.Supervisor,
	pollTimeout time.Duration,
	lg *zap.Logger,
) *Pipeline {
	return &Pipeline{
		reader:      reader,
		detector:    detector,
		batcher:     batcher,
		sink:        sink,
		storageSup:  storageSup,
		pollTimeout: pollTimeout,
		lg:          lg,
	}
}

// Run loops until the context is cancelled or the storage supervisor
// exhausts its reconnect budget. Cancellation is checked only at the top of
// the loop; a flush in progress always runs to completion or failure.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		p.poll(ctx)

		if p.batcher.ShouldFlush() {
			if err := p.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// poll reads at most one message within the poll timeout. An empty poll is
// not an error; it just gives the flush check a chance to run.
func (p *Pipeline) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	msg, err := p.reader.ReadMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return
		}
		p.lg.Warn("stream read failed", zap.Error(err))
		return
	}

	event, err := domain.DecodeEvent(msg.Value)
	if err != nil {
		// One bad event does not stop the stream.
		metrics.DecodeFailures.Inc()
		p.lg.Warn("skipping malformed event",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}
	metrics.EventsConsumed.Inc()

	anomalies := p.detector.Detect(event)
	for _, a := range anomalies {
		metrics.AnomaliesDetected.WithLabelValues(string(a.AnomalyType)).Inc()
	}

	p.batcher.Add(event, anomalies)
}

// flush hands the batch to the sink. On failure the batch is discarded, the
// storage supervisor reconnects, and processing continues; only reconnect
// exhaustion is returned as a fatal error.
func (p *Pipeline) flush(ctx context.Context) error {
	batch := p.batcher.Take()

	start := time.Now()
	err := p.sink.Flush(ctx, batch)
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FlushFailures.Inc()
		p.lg.Error("batch flush failed, discarding batch",
			zap.Int("events", len(batch.Events)),
			zap.Int("anomalies", len(batch.Anomalies)),
			zap.Error(err),
		)

		p.storageSup.MarkFailure()
		if cerr := p.storageSup.Connect(ctx); cerr != nil {
			return cerr
		}
		return nil
	}

	metrics.FlushSuccess.Inc()
	p.lg.Debug("batch flushed",
		zap.Int("events", len(batch.Events)),
		zap.Int("anomalies", len(batch.Anomalies)),
	)
	return nil
}
