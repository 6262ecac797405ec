package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okibo/invoice-analyzer/internal/infrastructure/resilience"
)

// Publisher fans invoice and quota changes out to downstream consumers
// (dashboard caches, usage reports). Subjects are derived from one prefix:
// <prefix>.invoice.saved and <prefix>.usage.committed.
type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subjectPrefix string) (*Publisher, error) {
	return NewWithOptions(url, subjectPrefix, Options{})
}

func NewWithOptions(url, subjectPrefix string, options Options) (*Publisher, error) {
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
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if subjectPrefix == "" {
		subjectPrefix = "invoices"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("invoice-analyzer"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

type invoiceSavedEvent struct {
	InvoiceID   string `json:"invoice_id"`
	AccountCode string `json:"account_code"`
}

type usageCommittedEvent struct {
	AccountCode string `json:"account_code"`
	ScanCount   int    `json:"scan_count"`
}

func (p *Publisher) PublishInvoiceSaved(ctx context.Context, invoiceID, accountCode string) error {
	return p.publish(ctx, p.subjectPrefix+".invoice.saved", invoiceSavedEvent{
		InvoiceID:   invoiceID,
		AccountCode: accountCode,
	})
}

func (p *Publisher) PublishUsageCommitted(ctx context.Context, accountCode string, scanCount int) error {
	return p.publish(ctx, p.subjectPrefix+".usage.committed", usageCommittedEvent{
		AccountCode: accountCode,
		ScanCount:   scanCount,
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	call := func(context.Context) error {
		if err := p.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeInvoiceSaved feeds saved-invoice events to a consumer and blocks
// until ctx is cancelled. A non-empty group load-balances across a queue
// group; an empty group delivers every event to every subscriber, which is
// what cache invalidation across replicas needs.
func (p *Publisher) SubscribeInvoiceSaved(ctx context.Context, group string, handler func(ctx context.Context, invoiceID, accountCode string) error) error {
	subject := p.subjectPrefix + ".invoice.saved"
	deliver := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var event invoiceSavedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Warn("malformed invoice event", "subject", subject, "error", err)
			return
		}
		if err := handler(ctx, event.InvoiceID, event.AccountCode); err != nil {
			p.logger.Warn("invoice event handler failed", "invoice_id", event.InvoiceID, "error", err)
		}
	}

	var sub *nats.Subscription
	var err error
	if group == "" {
		sub, err = p.conn.Subscribe(subject, deliver)
	} else {
		sub, err = p.conn.QueueSubscribe(subject, group, deliver)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
