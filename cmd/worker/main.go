package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docvault-backend/internal/bootstrap"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/shared/config"
	"docvault-backend/internal/shared/metrics"
	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/telemetry"
)

const (
	defaultVisibilitySeconds  = 1200
	defaultShutdownTimeoutSec = 30
	maintenancePeriod         = 5 * time.Minute
	staleTaskThreshold        = 30 * time.Minute
)

func main() {
	cfg := config.Load()

	queueURL := strings.TrimSpace(cfg.SQSQueueURL)
	if queueURL == "" {
		log.Fatal("SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AWSRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(ctx, cfg, bootstrap.BuildOptions{
		DBOptions: db.OptionsFromEnv(db.DefaultWorkerOptions()),
	})
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	go runMaintenance(ctx, app)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, app, sqsClient, queueURL, m, cfg.JobMaxAttempts)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// handleMessage runs one upload job. Transient failures leave the message
// in the queue for redelivery after the visibility timeout; once the
// receive count reaches the attempt budget the task is marked failed and
// the message removed.
func handleMessage(ctx context.Context, app *bootstrap.App, client sqsAPI, queueURL string, msg sqstypes.Message, maxAttempts int) {
	body := aws.ToString(msg.Body)
	if strings.TrimSpace(body) == "" {
		fields := baseFields(msg, queue.Job{})
		fields["body_len"] = 0
		telemetry.Error("worker.upload.empty_body", fields)
		deleteMessage(ctx, client, queueURL, msg, queue.Job{})
		return
	}

	job, err := queue.DecodeJob([]byte(body))
	if err != nil {
		fields := baseFields(msg, queue.Job{})
		fields["error"] = err.Error()
		telemetry.Error("worker.upload.decode_failed", fields)
		deleteMessage(ctx, client, queueURL, msg, queue.Job{})
		return
	}

	telemetry.Info("worker.upload.received", baseFields(msg, job))
	metrics.IncJobsStarted()
	start := time.Now()

	if err := app.Orchestrator.HandleJob(ctx, job); err != nil {
		fields := baseFields(msg, job)
		fields["error"] = err.Error()

		if maxAttempts <= 0 {
			maxAttempts = 3
		}
		if queue.IsPermanent(err) || receiveCount(msg) >= maxAttempts {
			telemetry.Error("worker.upload.failed", fields)
			metrics.IncJobsFailed()
			app.Orchestrator.HandleFailure(ctx, job, err)
			deleteMessage(ctx, client, queueURL, msg, job)
			return
		}

		// Leave the message for redelivery.
		telemetry.Warn("worker.upload.retry_later", fields)
		return
	}

	metrics.IncJobsCompleted()
	metrics.ObserveJobDurationMs(float64(time.Since(start).Milliseconds()))
	if deleteMessage(ctx, client, queueURL, msg, job) {
		telemetry.Info("worker.upload.completed", baseFields(msg, job))
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, job queue.Job) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, job)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.upload.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, job)
		fields["error"] = err.Error()
		telemetry.Error("worker.upload.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, job queue.Job) map[string]any {
	fields := map[string]any{
		"task_id":        job.TaskID,
		"document_id":    job.DocumentID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(job.RequestID) != "" {
		fields["request_id"] = job.RequestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func runMaintenance(ctx context.Context, app *bootstrap.App) {
	ticker := time.NewTicker(maintenancePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := app.Orchestrator.CleanupStale(ctx, staleTaskThreshold); err != nil {
				telemetry.Warn("maintenance.cleanup_stale_failed", map[string]any{"error": err.Error()})
			} else if n > 0 {
				telemetry.Info("maintenance.cleanup_stale", map[string]any{"failed_tasks": n})
			}
			if _, err := app.SharingService.PurgeExpired(ctx); err != nil {
				telemetry.Warn("maintenance.purge_expired_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
