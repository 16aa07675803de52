package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vmaslov/retrieval-engine/internal/infrastructure/resilience"
)

// Queue carries the two indexing events: chunks.ingested fans work out
// to one worker in the indexer group, corpus.indexed fans out to every
// API replica so each rebuilds its in-process lexical index.
type Queue struct {
	conn           *nats.Conn
	ingestSubject  string
	indexedSubject string
	executor       *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, ingestSubject, indexedSubject string) (*Queue, error) {
	return NewWithOptions(url, ingestSubject, indexedSubject, Options{})
}

func NewWithOptions(url, ingestSubject, indexedSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("retrieval-engine"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		ingestSubject:  ingestSubject,
		indexedSubject: indexedSubject,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishChunksIngested(ctx context.Context, batchID string) error {
	return q.publish(ctx, q.ingestSubject, batchID)
}

func (q *Queue) PublishCorpusIndexed(ctx context.Context, batchID string) error {
	return q.publish(ctx, q.indexedSubject, batchID)
}

func (q *Queue) publish(ctx context.Context, subject, batchID string) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, []byte(batchID)); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish."+subject, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("nats publish", err)
	}
	return nil
}

// SubscribeChunksIngested joins the indexer queue group so each batch
// lands on exactly one worker. Blocks until ctx is done, then drains.
func (q *Queue) SubscribeChunksIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.ingestSubject, "indexers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("batch_handler_failed", "batch_id", string(msg.Data), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.ingestSubject, err)
	}
	return q.waitAndDrain(ctx, sub)
}

// SubscribeCorpusIndexed uses a plain subscription: every API replica
// must observe every indexed batch to keep its lexical snapshot fresh.
func (q *Queue) SubscribeCorpusIndexed(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.Subscribe(q.indexedSubject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("indexed_handler_failed", "batch_id", string(msg.Data), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.indexedSubject, err)
	}
	return q.waitAndDrain(ctx, sub)
}

func (q *Queue) waitAndDrain(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
