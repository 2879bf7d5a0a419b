// Package redis is the Redis Streams task queue used in worker mode.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	redisadapter "github.com/custodia-labs/sercha-rag/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

const (
	taskStream     = "sercha-rag:tasks"
	taskGroup      = "sercha-rag:workers"
	scheduledTasks = "sercha-rag:scheduled"
	taskKeyPrefix  = "sercha-rag:task:"
	completedCount = "sercha-rag:tasks:completed"
	failedCount    = "sercha-rag:tasks:failed"

	consumerPrefix = "worker-"

	// taskTTL bounds how long finished task records stay readable
	taskTTL = 24 * time.Hour

	// claimTimeout is how long a delivered message may stay unacked before
	// another worker takes it over
	claimTimeout = 5 * time.Minute
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue on a Redis stream with one consumer group.
// Task bodies live under their own keys; stream entries only carry the id.
// Delayed and retried tasks wait in a sorted set until they are due.
type Queue struct {
	client       *redis.Client
	consumerName string
}

// NewQueue creates the consumer group when missing. consumerName must be
// unique per worker process; an empty name gets a generated one.
func NewQueue(ctx context.Context, client *redis.Client, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = consumerPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	err := client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, redisadapter.Unavailable(fmt.Errorf("failed to create consumer group: %w", err))
	}
	return &Queue{client: client, consumerName: consumerName}, nil
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func msgKey(id string) string {
	return taskKeyPrefix + id + ":msg"
}

func streamValues(task *domain.Task) map[string]any {
	return map[string]any{
		"task_id":    task.ID,
		"type":       string(task.Type),
		"session_id": task.SessionID,
	}
}

func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKey(task.ID), data, taskTTL)
	if task.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: taskStream, Values: streamValues(task)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return redisadapter.Unavailable(fmt.Errorf("failed to enqueue task: %w", err))
	}
	return nil
}

// DequeueWithTimeout promotes due delayed tasks, then reclaims abandoned
// deliveries, then reads a new entry. A timeout of zero or less does not
// block.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	_ = q.promoteScheduledTasks(ctx)

	if task, err := q.claimAbandonedTask(ctx); err == nil && task != nil {
		return task, nil
	}

	block := time.Duration(-1)
	if timeout > 0 {
		block = time.Duration(timeout) * time.Second
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, redisadapter.Unavailable(fmt.Errorf("failed to read from stream: %w", err))
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver loads the task behind a stream message and marks it processing.
// Messages without a readable task are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	var task *domain.Task
	if taskID != "" {
		var err error
		task, err = q.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
	}
	if task == nil {
		q.client.XAck(ctx, taskStream, taskGroup, msg.ID)
		q.client.XDel(ctx, taskStream, msg.ID)
		return nil, nil
	}

	task.Begin()
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKey(task.ID), data, taskTTL)
	pipe.Set(ctx, msgKey(task.ID), msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, redisadapter.Unavailable(fmt.Errorf("failed to mark task processing: %w", err))
	}
	return task, nil
}

// Ack marks the task completed and removes its stream entry.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	msgID, err := q.client.Get(ctx, msgKey(taskID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return redisadapter.Unavailable(fmt.Errorf("failed to get message id: %w", err))
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	if task != nil {
		task.Complete()
		data, _ := json.Marshal(task)
		pipe.Set(ctx, taskKey(taskID), data, taskTTL)
		pipe.Incr(ctx, completedCount)
	}
	pipe.Del(ctx, msgKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return redisadapter.Unavailable(fmt.Errorf("failed to ack task: %w", err))
	}
	return nil
}

// Nack schedules a retry with backoff, or marks the task failed once its
// attempts are used up.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	msgID, _ := q.client.Get(ctx, msgKey(taskID)).Result()

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	if task.Fail(reason) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		pipe.Incr(ctx, failedCount)
	}
	data, _ := json.Marshal(task)
	pipe.Set(ctx, taskKey(taskID), data, taskTTL)
	pipe.Del(ctx, msgKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return redisadapter.Unavailable(fmt.Errorf("failed to nack task: %w", err))
	}
	return nil
}

// GetTask returns nil, nil for unknown or expired tasks.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, redisadapter.Unavailable(fmt.Errorf("failed to get task: %w", err))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Stats counts stream entries not yet delivered plus delayed tasks as
// pending. Completed and failed counts are running totals.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	pipe := q.client.Pipeline()
	length := pipe.XLen(ctx, taskStream)
	scheduled := pipe.ZCard(ctx, scheduledTasks)
	completed := pipe.Get(ctx, completedCount)
	failed := pipe.Get(ctx, failedCount)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, redisadapter.Unavailable(fmt.Errorf("failed to read queue stats: %w", err))
	}

	stats := &driven.QueueStats{}
	if groups, err := q.client.XInfoGroups(ctx, taskStream).Result(); err == nil {
		for _, g := range groups {
			if g.Name == taskGroup {
				stats.ProcessingCount = g.Pending
			}
		}
	}
	stats.PendingCount = length.Val() - stats.ProcessingCount + scheduled.Val()
	if stats.PendingCount < 0 {
		stats.PendingCount = 0
	}
	stats.CompletedCount, _ = completed.Int64()
	stats.FailedCount, _ = failed.Int64()
	return stats, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return redisadapter.Unavailable(q.client.Ping(ctx).Err())
}

// Close is a no-op; the client is shared with the lock and search log.
func (q *Queue) Close() error {
	return nil
}

// promoteScheduledTasks moves due delayed tasks onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, id := range due {
		pipe.ZRem(ctx, scheduledTasks, id)
		task, err := q.GetTask(ctx, id)
		if err != nil || task == nil {
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: taskStream, Values: streamValues(task)})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// claimAbandonedTask takes over a delivery another worker left unacked for
// longer than claimTimeout.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.deliver(ctx, claimed[0])
		if err != nil || task == nil {
			continue
		}
		return task, nil
	}
	return nil, nil
}
