package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

const defaultProbeTimeout = 2 * time.Second

// Probe проверяет доступность брокеров запросом метаданных.
type Probe struct {
	brokers []string
	config  *sarama.Config
	dial    func(brokers []string, config *sarama.Config) (sarama.Client, error)
}

// NewProbe создаёт проверку для health-обработчика.
func NewProbe(brokers []string, clientID string) *Probe {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID + "-probe"
	}
	config.Net.DialTimeout = defaultProbeTimeout
	config.Metadata.Retry.Max = 0
	return &Probe{brokers: brokers, config: config, dial: sarama.NewClient}
}

// Ping подключается к кластеру и обновляет метаданные.
func (p *Probe) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("kafka brokers are not configured")
	}

	done := make(chan error, 1)
	go func() {
		client, err := p.dial(p.brokers, p.config)
		if err != nil {
			done <- fmt.Errorf("connect to kafka: %w", err)
			return
		}
		defer client.Close()
		if err := client.RefreshMetadata(); err != nil {
			done <- fmt.Errorf("refresh kafka metadata: %w", err)
			return
		}
		if len(client.Brokers()) == 0 {
			done <- errors.New("kafka cluster has no brokers")
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
