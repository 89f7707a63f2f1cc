package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mqtap/mqtap/internal/archive"
	"github.com/mqtap/mqtap/internal/capture"
	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/logger"
	"github.com/mqtap/mqtap/internal/rewrite"
	"github.com/mqtap/mqtap/internal/websocket"
)

const statusInterval = 30 * time.Second

// Consumer reads messages from the broker, runs them through the
// replacement engine and fans the results out to the capture store,
// the archive and WebSocket clients
type Consumer struct {
	config    config.BrokerConfig
	preview   int
	client    *redis.Client
	engine    *rewrite.Engine
	store     *capture.Store
	archive   *archive.Store
	hub       *websocket.Hub
	logger    *logger.Logger
	limiter   *rate.Limiter
	startedAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a broker consumer and verifies the connection
func New(cfg *config.Config, log *logger.Logger, engine *rewrite.Engine, store *capture.Store, archiveStore *archive.Store, hub *websocket.Hub) (*Consumer, error) {
	// Parse broker URL
	opts, err := redis.ParseURL(cfg.Broker.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.Broker.RateLimit > 0 {
		burst := cfg.Broker.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Broker.RateLimit), burst)
	}

	consumer := &Consumer{
		config:    cfg.Broker,
		preview:   cfg.Capture.PreviewBytes,
		client:    client,
		engine:    engine,
		store:     store,
		archive:   archiveStore,
		hub:       hub,
		logger:    log.WithComponent("consumer"),
		limiter:   limiter,
		startedAt: time.Now(),
	}

	consumer.logger.Info("Broker consumer initialized",
		zap.String("broker_url", maskBrokerURL(cfg.Broker.URL)),
		zap.String("mode", cfg.Broker.Mode),
		zap.Float64("rate_limit", cfg.Broker.RateLimit),
	)

	return consumer, nil
}

// Start launches the consume loop for the configured mode
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	switch c.config.Mode {
	case "stream":
		if err := c.ensureGroup(ctx); err != nil {
			return err
		}
		c.wg.Add(1)
		go c.consumeStream(ctx)
	case "pubsub":
		c.wg.Add(1)
		go c.consumePubSub(ctx)
	default:
		return fmt.Errorf("unknown broker mode %q", c.config.Mode)
	}

	c.wg.Add(1)
	go c.statusLoop(ctx)

	return nil
}

// Stop cancels the consume loop and closes the broker connection
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.logger.Info("Broker consumer stopped")
	return c.client.Close()
}

// ensureGroup creates the consumer group, tolerating an existing one.
// The group starts at new messages so restarts do not reprocess history
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// consumeStream reads the stream through the consumer group. Entries
// this consumer left unacknowledged on a previous run are drained first
func (c *Consumer) consumeStream(ctx context.Context) {
	defer c.wg.Done()

	c.drainPending(ctx)

	c.logger.Info("Consuming stream",
		zap.String("stream", c.config.Stream),
		zap.String("group", c.config.Group),
		zap.String("consumer", c.config.Consumer),
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := c.readBatch(ctx, ">", false); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// drainPending reprocesses entries delivered to this consumer but never
// acknowledged, marking them as redelivered
func (c *Consumer) drainPending(ctx context.Context) {
	total := 0
	for {
		n, err := c.readBatch(ctx, "0", true)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Failed to drain pending entries", zap.Error(err))
			}
			return
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		c.logger.Info("Reprocessed pending entries", zap.Int("count", total))
	}
}

// readBatch reads one batch from the stream starting at startID and
// processes every entry, acknowledging each one afterwards
func (c *Consumer) readBatch(ctx context.Context, startID string, redelivered bool) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.Consumer,
		Streams:  []string{c.config.Stream, startID},
		Count:    c.config.BatchSize,
		Block:    c.config.BlockTimeout,
	}).Result()
	if err == redis.Nil {
		// Block timeout with nothing new
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.waitForSlot(ctx); err != nil {
				return processed, err
			}

			c.handleMessage(stream.Stream, msg.ID, extractBody(msg.Values), redelivered)

			if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, msg.ID).Err(); err != nil {
				c.logger.Warn("Failed to acknowledge message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
			processed++
		}
	}
	return processed, nil
}

// consumePubSub subscribes to the configured channels. PubSub carries no
// message IDs, so a per-channel sequence number stands in
func (c *Consumer) consumePubSub(ctx context.Context) {
	defer c.wg.Done()

	pubsub := c.client.Subscribe(ctx, c.config.Channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			c.logger.Error("Failed to subscribe",
				zap.Strings("channels", c.config.Channels),
				zap.Error(err),
			)
		}
		return
	}

	c.logger.Info("Subscribed to channels", zap.Strings("channels", c.config.Channels))

	seq := make(map[string]int, len(c.config.Channels))
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.waitForSlot(ctx); err != nil {
				return
			}
			seq[msg.Channel]++
			messageID := fmt.Sprintf("%s-%d", msg.Channel, seq[msg.Channel])
			c.handleMessage(msg.Channel, messageID, msg.Payload, false)
		}
	}
}

// handleMessage runs one message through the engine and fans out the result
func (c *Consumer) handleMessage(source, messageID, body string, redelivered bool) {
	isJSON := rewrite.LooksLikeJSON(body)
	result := c.engine.Process(body, isJSON)

	event := capture.Event{
		ID:          uuid.New().String(),
		Source:      source,
		MessageID:   messageID,
		Body:        result.Output,
		RawBody:     body,
		IsJSON:      isJSON,
		Applied:     result.Applied,
		Redelivered: redelivered,
		ReceivedAt:  time.Now(),
	}

	c.logger.LogMessage(source, messageID, result.Output, c.preview)
	c.logger.LogReplacements(messageID, result.Applied)

	c.store.Add(event)

	if c.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.archive.Add(ctx, event); err != nil {
			c.logger.Warn("Failed to archive event", zap.Error(err))
		}
		cancel()
	}

	c.broadcast(event)
}

// broadcast pushes message and replacement events to WebSocket clients
func (c *Consumer) broadcast(event capture.Event) {
	preview := event.Body
	if c.preview > 0 && len(preview) > c.preview {
		preview = preview[:c.preview]
	}

	c.hub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeMessage,
		Timestamp: event.ReceivedAt,
		MessageID: event.MessageID,
		Data: websocket.MessageEvent{
			EventID:     event.ID,
			Source:      event.Source,
			MessageID:   event.MessageID,
			BodyPreview: preview,
			IsJSON:      event.IsJSON,
			Redelivered: event.Redelivered,
			SizeBytes:   len(event.Body),
		},
	})

	if len(event.Applied) > 0 {
		c.hub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeReplacement,
			Timestamp: event.ReceivedAt,
			MessageID: event.MessageID,
			Data: websocket.ReplacementEvent{
				EventID:   event.ID,
				Source:    event.Source,
				MessageID: event.MessageID,
				Applied:   event.Applied,
				Count:     len(event.Applied),
			},
		})
	}
}

// statusLoop periodically broadcasts system status to WebSocket clients
func (c *Consumer) statusLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.broadcastStatus()
		}
	}
}

func (c *Consumer) broadcastStatus() {
	stats := c.store.GetStats()

	activeRules := 0
	for _, rule := range c.engine.Rules() {
		if rule.Enabled {
			activeRules++
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.hub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data: websocket.SystemStatusEvent{
			Status:            "running",
			Uptime:            time.Since(c.startedAt).Round(time.Second).String(),
			TotalMessages:     stats.TotalEvents,
			TotalReplacements: stats.TotalReplacements,
			ActiveRules:       activeRules,
			ConnectedClients:  int(c.hub.GetStats().ActiveConnections),
			MemoryUsage:       fmt.Sprintf("%d MB", mem.Alloc/1024/1024),
		},
	})
}

// waitForSlot blocks until the rate limiter admits the next message
func (c *Consumer) waitForSlot(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// bodyFields lists the stream entry fields checked for the message payload
var bodyFields = []string{"body", "payload", "data", "message"}

// extractBody pulls the message payload out of a stream entry. Entries
// with a single field use that field, anything else is kept verbatim as JSON
func extractBody(values map[string]interface{}) string {
	for _, field := range bodyFields {
		if v, ok := values[field]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}

	if len(values) == 1 {
		for _, v := range values {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Sprintf("%v", values)
	}
	return string(data)
}

// maskBrokerURL masks credentials in the broker URL for logging
func maskBrokerURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
