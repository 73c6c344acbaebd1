package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel reload bumps are published on.
const DefaultChannel = "staffline:directory:reload"

// Invalidator propagates reloads across instances over Redis pub/sub.
type Invalidator struct {
	client  *redis.Client
	channel string
	store   *Store
	logger  *slog.Logger
}

// NewInvalidator constructs an Invalidator. An empty channel uses DefaultChannel.
func NewInvalidator(client *redis.Client, channel string, store *Store, logger *slog.Logger) *Invalidator {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{client: client, channel: channel, store: store, logger: logger}
}

// Publish announces that the directory data changed. Every subscribed
// instance, this one included, reloads. A publish-only Invalidator may have a
// nil store.
func (i *Invalidator) Publish(ctx context.Context) error {
	var version uint64
	if i.store != nil {
		if snap := i.store.Current(); snap != nil {
			version = snap.Version
		}
	}
	if err := i.client.Publish(ctx, i.channel, strconv.FormatUint(version, 10)).Err(); err != nil {
		return fmt.Errorf("directory: publish reload: %w", err)
	}
	return nil
}

// Run subscribes and reloads on every bump until ctx is done.
func (i *Invalidator) Run(ctx context.Context) error {
	sub := i.client.Subscribe(ctx, i.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("directory: subscribe %s: %w", i.channel, err)
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			i.logger.Debug("directory reload requested", slog.String("from_version", msg.Payload))
			if _, err := i.store.Reload(ctx); err != nil {
				i.logger.Warn("directory reload after bump failed", slog.Any("error", err))
			}
		}
	}
}
