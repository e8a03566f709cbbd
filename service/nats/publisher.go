package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/agentpay/service/compliance"
	"github.com/brojonat/agentpay/service/metrics"
	"github.com/brojonat/agentpay/service/transfer"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher publishes transfer and compliance events to NATS. It satisfies
// transfer.Publisher and compliance.RecordSink.
type Publisher interface {
	// PublishTransfer publishes to "transfers.{recipient_account}".
	PublishTransfer(ctx context.Context, o *transfer.Outcome) error

	// Record publishes to "compliance.{overall_status}".
	Record(ctx context.Context, d compliance.Decision) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the JetStream stream holding all agentpay events.
	StreamName = "AGENTPAY"

	// TransferSubjects matches every transfer subject. Account ids contain
	// dots, so a multi-token wildcard is needed.
	TransferSubjects = "transfers.>"

	// ComplianceSubjects matches every compliance decision subject.
	ComplianceSubjects = "compliance.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// TransferSubject returns the subject for transfers to recipient.
func TransferSubject(recipient string) string {
	return "transfers." + recipient
}

// ComplianceSubject returns the subject for decisions with status.
func ComplianceSubject(status compliance.Status) string {
	return "compliance." + strings.ToLower(string(status))
}

// NewPublisher connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("agentpay-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Completed transfers and compliance decisions",
		Subjects:    []string{TransferSubjects, ComplianceSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	// Per-recipient subjects would explode label cardinality.
	p.metrics.RecordNATSPublish(strings.SplitN(subject, ".", 2)[0], status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishTransfer implements transfer.Publisher.
func (p *JetStreamPublisher) PublishTransfer(ctx context.Context, o *transfer.Outcome) error {
	event := FromOutcome(o)
	subject := TransferSubject(event.Recipient)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}

	p.logger.Debug("published transfer event",
		"subject", subject,
		"transaction_id", event.TransactionID,
	)
	return nil
}

// Record implements compliance.RecordSink.
func (p *JetStreamPublisher) Record(ctx context.Context, d compliance.Decision) error {
	subject := ComplianceSubject(d.Overall)
	if err := p.publish(ctx, subject, FromDecision(d)); err != nil {
		return err
	}

	p.logger.Debug("published compliance event",
		"subject", subject,
		"decision_id", d.ID,
	)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
