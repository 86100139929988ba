package pubsub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/danmaku-relay/config"
)

// ErrExportDisabled is returned when a subscriber is requested with export.driver=none.
var ErrExportDisabled = errors.New("pubsub: export disabled")

// Provider owns the export transport selected by export.driver.
// The gochannel driver shares one in-process instance between publisher and subscribers;
// the amqp driver binds a durable queue per subscriber to a fanout exchange named after the topic.
type Provider struct {
	cfg    config.ExportConfig
	logger watermill.LoggerAdapter

	publisher message.Publisher
	channel   *gochannel.GoChannel

	mu      sync.Mutex
	closers []func() error
}

func NewProvider(cfg config.ExportConfig, logger watermill.LoggerAdapter) (*Provider, error) {
	p := &Provider{cfg: cfg, logger: logger}

	switch cfg.Driver {
	case config.ExportNone, "":
	case config.ExportGoChannel:
		p.channel = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		p.publisher = p.channel
		p.closers = append(p.closers, p.channel.Close)
	case config.ExportAMQP:
		pub, err := amqp.NewPublisher(p.amqpConfig("relay"), logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		p.publisher = pub
		p.closers = append(p.closers, pub.Close)
	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.Driver)
	}

	return p, nil
}

func (p *Provider) amqpConfig(queueSuffix string) amqp.Config {
	return amqp.NewDurablePubSubConfig(p.cfg.AMQPURL, amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix))
}

// Publisher is nil when export is disabled.
func (p *Provider) Publisher() message.Publisher { return p.publisher }

// Subscriber builds a consumer of the export stream. queueSuffix names the consumer's queue on brokers that have one.
func (p *Provider) Subscriber(queueSuffix string) (message.Subscriber, error) {
	switch {
	case p.channel != nil:
		return p.channel, nil
	case p.publisher != nil:
		sub, err := amqp.NewSubscriber(p.amqpConfig(queueSuffix), p.logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
		}
		p.mu.Lock()
		p.closers = append(p.closers, sub.Close)
		p.mu.Unlock()
		return sub, nil
	default:
		return nil, ErrExportDisabled
	}
}

// Close releases every publisher and subscriber built by the provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
