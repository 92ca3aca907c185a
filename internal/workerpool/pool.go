package workerpool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/judge"
	"codearena/internal/logger"
	"codearena/internal/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Queue is the dispatch side of the sweep stream: every successfully
// dispatched submission is enqueued so a sweeper settles its verdict even if
// the client never polls.
type Queue struct {
	rdb    *redis.Client
	stream string
}

func NewQueue(rdb *redis.Client, stream string) *Queue {
	return &Queue{rdb: rdb, stream: stream}
}

func (q *Queue) Enqueue(ctx context.Context, submissionID int) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		ID:     "*", // Auto-generate ID
		Values: map[string]interface{}{
			"submission_id": submissionID,
		},
	}).Err()
}

// SweepWorker consumes submission ids from the stream and runs the status
// poller for each.
type SweepWorker struct {
	id          string
	quit        chan bool
	rdb         *redis.Client
	stream      string
	group       string
	submissions *services.SubmissionService
}

func NewSweepWorker(id string, rdb *redis.Client, stream, group string,
	submissions *services.SubmissionService) *SweepWorker {
	return &SweepWorker{
		id:          id,
		quit:        make(chan bool),
		rdb:         rdb,
		stream:      stream,
		group:       group,
		submissions: submissions,
	}
}

// Start begins processing sweep jobs from the stream
func (w *SweepWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-w.quit:
				return
			default:
				entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    w.group,
					Consumer: w.id,
					Streams:  []string{w.stream, ">"},
					Count:    1,
					Block:    5 * time.Second,
				}).Result()

				if err != nil {
					if err != redis.Nil {
						logger.Log.Error("Redis operation failed",
							zap.String("worker_id", w.id),
							zap.Error(err))
					}
					continue
				}

				for _, stream := range entries {
					for _, msg := range stream.Messages {
						w.processSweep(ctx, msg)
					}
				}
			}
		}
	}()
}

func (w *SweepWorker) Stop() {
	logger.Log.Info("Closing worker",
		zap.String("worker_id", w.id))
	w.quit <- true
	close(w.quit)
}

func (w *SweepWorker) processSweep(ctx context.Context, msg redis.XMessage) {
	logger.Log.Info("Processing status sweep",
		zap.String("worker_id", w.id),
		zap.String("job_id", msg.ID))

	if err := w.rdb.XAck(ctx, w.stream, w.group, msg.ID).Err(); err != nil {
		logger.Log.Error("Failed to acknowledge job",
			zap.String("worker_id", w.id),
			zap.Error(err))
	}

	submissionIDStr, ok := msg.Values["submission_id"].(string)
	if !ok {
		logger.Log.Error("Invalid submission ID in message",
			zap.String("worker_id", w.id),
			zap.Any("values", msg.Values))
		return
	}

	submissionID, err := strconv.Atoi(submissionIDStr)
	if err != nil {
		logger.Log.Error("Failed to parse submission ID",
			zap.String("worker_id", w.id),
			zap.String("submission_id", submissionIDStr),
			zap.Error(err))
		return
	}

	view, err := w.submissions.Refresh(ctx, submissionID)
	if err != nil {
		if errors.Is(err, judge.ErrPollTimeout) {
			// Not fatal: the jobs may settle later and any follow-up status
			// check will re-poll the same tokens.
			logger.Log.Warn("Status sweep timed out before all test cases settled",
				zap.String("worker_id", w.id),
				zap.Int("submission_id", submissionID))
			return
		}
		logger.Log.Error("Status sweep failed",
			zap.String("worker_id", w.id),
			zap.Int("submission_id", submissionID),
			zap.Error(err))
		return
	}

	logger.Log.Info("Finished status sweep",
		zap.String("worker_id", w.id),
		zap.String("job_id", msg.ID),
		zap.Int("submission_id", submissionID),
		zap.String("status", view.Status))
}

type SweepWorkerPool struct {
	workers     []*SweepWorker
	numWorkers  int
	rdb         *redis.Client
	stream      string
	group       string
	submissions *services.SubmissionService
}

func NewSweepWorkerPool(numWorkers int, rdb *redis.Client, stream, group string,
	submissions *services.SubmissionService) *SweepWorkerPool {
	return &SweepWorkerPool{
		workers:     make([]*SweepWorker, numWorkers),
		numWorkers:  numWorkers,
		rdb:         rdb,
		stream:      stream,
		group:       group,
		submissions: submissions,
	}
}

func (p *SweepWorkerPool) Start(ctx context.Context) error {
	// Create consumer group if it doesn't exist
	_, err := p.rdb.XGroupCreateMkStream(ctx, p.stream, p.group, "$").Result()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	// Start workers
	for i := 0; i < p.numWorkers; i++ {
		worker := NewSweepWorker(
			fmt.Sprintf("SweepWorker-%d", i+1),
			p.rdb,
			p.stream,
			p.group,
			p.submissions,
		)

		worker.Start(ctx)
		p.workers[i] = worker

		logger.Log.Info("Starting sweep worker",
			zap.String("worker_id", worker.id))
	}

	logger.Log.Info("Sweep worker pool started",
		zap.Int("num_workers", p.numWorkers))

	return nil
}

// Stop terminates all workers in the pool
func (p *SweepWorkerPool) Stop() {
	for _, worker := range p.workers {
		worker.Stop()
	}
}
