package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/flybeeper/trail-conflation/internal/config"
	"github.com/flybeeper/trail-conflation/internal/metrics"
	"github.com/flybeeper/trail-conflation/pkg/utils"
)

const (
	// QoS уведомлений: доставка хотя бы один раз
	NotifyQoS = 1

	publishTimeout = 5 * time.Second

	topicTracks     = "tracks"
	topicPartitions = "partitions"
)

// TrackEvent уведомление о результате обработки трека
type TrackEvent struct {
	TrackID string `json:"track_id"`
	Status  string `json:"status"` // accepted или discarded
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	RunID   string `json:"run_id"`
}

// PartitionEvent уведомление о записанной таблице статистики
type PartitionEvent struct {
	Partition string `json:"partition"`
	Edges     int    `json:"edges"`
	Corrected int    `json:"corrected"`
}

const (
	StatusAccepted  = "accepted"
	StatusDiscarded = "discarded"
)

// Notifier публикует события конвейера в MQTT брокер
type Notifier struct {
	client    mqtt.Client
	prefix    string
	logger    *utils.Logger
	connected bool
	mu        sync.RWMutex
}

// NewNotifier создает MQTT клиент уведомлений
func NewNotifier(cfg *config.MQTTConfig, logger *utils.Logger) (*Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("MQTT URL is required")
	}

	n := &Notifier{prefix: cfg.TopicPrefix, logger: logger}

	// Настройка MQTT клиента
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// Callback при подключении
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		n.setConnected(true)
		n.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
	})

	// Callback при потере соединения
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		n.setConnected(false)
		n.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
	})

	n.client = mqtt.NewClient(opts)
	return n, nil
}

// NewNotifierWithClient создает уведомитель поверх готового клиента
func NewNotifierWithClient(client mqtt.Client, prefix string, logger *utils.Logger) *Notifier {
	n := &Notifier{client: client, prefix: prefix, logger: logger}
	n.setConnected(client.IsConnected())
	return n
}

func (n *Notifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
	if v {
		metrics.MQTTConnectionStatus.Set(1)
	} else {
		metrics.MQTTConnectionStatus.Set(0)
	}
}

// Connect подключается к MQTT брокеру
func (n *Notifier) Connect() error {
	n.logger.Info("Connecting to MQTT broker")

	token := n.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	n.setConnected(true)
	return nil
}

// Disconnect отключается от MQTT брокера
func (n *Notifier) Disconnect() {
	if n.client.IsConnected() {
		n.client.Disconnect(1000) // 1 секунда на graceful disconnect
	}
	n.setConnected(false)
	n.logger.Info("MQTT notifier disconnected")
}

// IsConnected проверяет статус подключения
func (n *Notifier) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected && n.client.IsConnected()
}

// Topic строит топик {prefix}/{zone}/{kind}
func (n *Notifier) Topic(zone, kind string) string {
	return fmt.Sprintf("%s/%s/%s", n.prefix, zone, kind)
}

// PublishTrack публикует результат обработки трека
func (n *Notifier) PublishTrack(zone string, event TrackEvent) error {
	return n.publish(topicTracks, n.Topic(zone, topicTracks), event)
}

// PublishPartition публикует событие записи таблицы статистики
func (n *Notifier) PublishPartition(zone string, event PartitionEvent) error {
	return n.publish(topicPartitions, n.Topic(zone, topicPartitions), event)
}

func (n *Notifier) publish(kind, topic string, event interface{}) error {
	if !n.IsConnected() {
		metrics.MQTTMessagesPublished.WithLabelValues(kind, "skipped").Inc()
		return fmt.Errorf("MQTT client is not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	token := n.client.Publish(topic, NotifyQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.MQTTMessagesPublished.WithLabelValues(kind, "timeout").Inc()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		metrics.MQTTMessagesPublished.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.MQTTMessagesPublished.WithLabelValues(kind, "ok").Inc()
	n.logger.WithFields(map[string]interface{}{
		"topic":        topic,
		"payload_size": len(payload),
	}).Debug("Published MQTT message")
	return nil
}
