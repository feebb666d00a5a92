package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrTimeout = errors.New("queue timeout")

const (
	JobVerifyDomain     = "verify_domain"
	JobCheckCertificate = "check_certificate"
)

// PriorityHigh jobs are popped before anything scheduled by time.
const PriorityHigh = 1

// Job is identified by its type and domain only, so pushing a job that is
// already queued keeps a single entry at the better of the two scores.
type Job struct {
	Type     string    `json:"type"`
	DomainID uuid.UUID `json:"domain_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

type RedisQueue struct {
	client    redis.UniversalClient
	queueName string
	now       func() time.Time
}

func NewRedisQueue(client redis.UniversalClient) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueName: "tenant_domain_jobs",
		now:       time.Now,
	}
}

func (q *RedisQueue) Push(ctx context.Context, job *Job, priority int) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// Use priority as score (lower number = higher priority)
	score := float64(priority)
	if score == 0 {
		score = float64(q.now().Unix())
	}

	err = q.client.ZAddLT(ctx, q.queueName, redis.Z{
		Score:  score,
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}

	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BZPopMin(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	member, ok := result.Member.(string)
	if !ok {
		return nil, errors.New("invalid result from queue")
	}

	var job Job
	if err := json.Unmarshal([]byte(member), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueName).Result()
}
