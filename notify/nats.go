package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher is the part of *nats.Conn used for events
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes events as JSON on a subject
type NATS struct {
	pub     Publisher
	subject string
}

// NewNATS creates a notifier on an existing publisher
func NewNATS(pub Publisher, subject string) *NATS {
	return &NATS{pub: pub, subject: subject}
}

// ConnectNATS connects to the NATS server at url
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("go-evaluator"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Notify implements Notifier
func (n *NATS) Notify(_ context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.pub.Publish(n.subject, b); err != nil {
		return fmt.Errorf("failed to publish event to nats: %w", err)
	}
	return nil
}
