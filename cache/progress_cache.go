package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

const (
	snapshotKeyPrefix = "reels:task:"
	channelPrefix     = "reels:progress:"
	snapshotTTL       = 24 * time.Hour
)

// ProgressCache keeps the latest snapshot of each task in Redis and fans
// changes out over pub/sub.
type ProgressCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProgressCache creates a ProgressCache on client.
func NewProgressCache(client *redis.Client) *ProgressCache {
	return &ProgressCache{client: client, ttl: snapshotTTL}
}

// SnapshotKey is the Redis key holding the latest snapshot of a task.
func SnapshotKey(taskID string) string {
	return snapshotKeyPrefix + taskID
}

// ChannelName is the pub/sub channel carrying a task's progress.
func ChannelName(taskID string) string {
	return channelPrefix + taskID
}

// PublishTask stores the snapshot and notifies subscribers.
func (c *ProgressCache) PublishTask(ctx context.Context, task *model.DownloadTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey(task.ID), data, c.ttl)
	pipe.Publish(ctx, ChannelName(task.ID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask returns the cached snapshot, or nil, nil on a miss.
func (c *ProgressCache) GetTask(ctx context.Context, taskID string) (*model.DownloadTask, error) {
	data, err := c.client.Get(ctx, SnapshotKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var task model.DownloadTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode cached task %s: %w", taskID, err)
	}
	return &task, nil
}

// Subscribe streams snapshots for taskID until ctx is done. The returned
// channel is closed when the subscription ends.
func (c *ProgressCache) Subscribe(ctx context.Context, taskID string) (<-chan *model.DownloadTask, error) {
	sub := c.client.Subscribe(ctx, ChannelName(taskID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", taskID, err)
	}

	out := make(chan *model.DownloadTask, 8)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var task model.DownloadTask
				if err := json.Unmarshal([]byte(msg.Payload), &task); err != nil {
					logger.Warn("bad progress message", logger.String("taskId", taskID), logger.ErrorField(err))
					continue
				}
				select {
				case out <- &task:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
