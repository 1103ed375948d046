package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docvault-backend/internal/bootstrap"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/notify"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/uploads"
	"docvault-backend/internal/users"
)

type fakeSQS struct {
	deleted   []string
	deleteErr error
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func testApp(t *testing.T) *bootstrap.App {
	t.Helper()
	return &bootstrap.App{
		Orchestrator: &uploads.Orchestrator{
			Tasks: uploads.NewMemoryRepo(),
			Docs:  documents.NewMemoryRepo(),
			Users: users.NewMemoryRepo(),
			Stage: &uploads.Stager{Dir: t.TempDir()},
			Hub:   notify.NewHub(),
		},
	}
}

func TestHandleMessageDeletesEmptyBody(t *testing.T) {
	client := &fakeSQS{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("r-1"),
		Body:          aws.String("   "),
	}

	handleMessage(context.Background(), testApp(t), client, "https://queue", msg, 3)

	if len(client.deleted) != 1 || client.deleted[0] != "r-1" {
		t.Fatalf("expected empty message deleted, got %v", client.deleted)
	}
}

func TestHandleMessageDeletesUndecodableBody(t *testing.T) {
	client := &fakeSQS{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m-2"),
		ReceiptHandle: aws.String("r-2"),
		Body:          aws.String("{not json"),
	}

	handleMessage(context.Background(), testApp(t), client, "https://queue", msg, 3)

	if len(client.deleted) != 1 {
		t.Fatalf("expected undecodable message deleted, got %v", client.deleted)
	}
}

func TestHandleMessageDeletesPermanentFailure(t *testing.T) {
	client := &fakeSQS{}
	// The referenced task does not exist, which the pipeline treats as a
	// permanent failure.
	payload, err := queue.EncodeJob(queue.Job{Key: "t-1", TaskID: "t-1", DocumentID: "d-1", Version: 1})
	if err != nil {
		t.Fatalf("encode job: %v", err)
	}
	msg := sqstypes.Message{
		MessageId:     aws.String("m-3"),
		ReceiptHandle: aws.String("r-3"),
		Body:          aws.String(string(payload)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(context.Background(), testApp(t), client, "https://queue", msg, 3)

	if len(client.deleted) != 1 {
		t.Fatalf("expected permanently failed message deleted, got %v", client.deleted)
	}
}

func TestHandleMessageLeavesTransientFailureForRedelivery(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t)

	// A cancelled context makes the repo read fail with a transient error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload, err := queue.EncodeJob(queue.Job{Key: "t-1", TaskID: "t-1", DocumentID: "d-1", Version: 1})
	if err != nil {
		t.Fatalf("encode job: %v", err)
	}
	msg := sqstypes.Message{
		MessageId:     aws.String("m-4"),
		ReceiptHandle: aws.String("r-4"),
		Body:          aws.String(string(payload)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(ctx, app, client, "https://queue", msg, 3)

	if len(client.deleted) != 0 {
		t.Fatalf("transient failure must leave the message, got deletions %v", client.deleted)
	}
}

func TestHandleMessageFailsTaskOnceAttemptsExhausted(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload, err := queue.EncodeJob(queue.Job{Key: "t-1", TaskID: "t-1", DocumentID: "d-1", Version: 1})
	if err != nil {
		t.Fatalf("encode job: %v", err)
	}
	msg := sqstypes.Message{
		MessageId:     aws.String("m-5"),
		ReceiptHandle: aws.String("r-5"),
		Body:          aws.String(string(payload)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
	}

	handleMessage(ctx, app, client, "https://queue", msg, 3)

	if len(client.deleted) != 1 {
		t.Fatalf("expected exhausted message deleted, got %v", client.deleted)
	}
}

func TestReceiveCountParsesAttribute(t *testing.T) {
	cases := []struct {
		msg  sqstypes.Message
		want int
	}{
		{sqstypes.Message{}, 0},
		{sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "4"}}, 4},
		{sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "junk"}}, 0},
	}
	for i, tc := range cases {
		if got := receiveCount(tc.msg); got != tc.want {
			t.Errorf("case %d: expected %d, got %d", i, tc.want, got)
		}
	}
}

func TestDeleteMessageWithoutReceiptHandle(t *testing.T) {
	client := &fakeSQS{}
	if ok := deleteMessage(context.Background(), client, "https://queue", sqstypes.Message{}, queue.Job{}); ok {
		t.Fatal("expected delete to report failure without a receipt handle")
	}
	if len(client.deleted) != 0 {
		t.Fatalf("expected no deletions, got %v", client.deleted)
	}
}

func TestDeleteMessageReportsClientError(t *testing.T) {
	client := &fakeSQS{deleteErr: errors.New("throttled")}
	msg := sqstypes.Message{ReceiptHandle: aws.String("r-9")}
	if ok := deleteMessage(context.Background(), client, "https://queue", msg, queue.Job{}); ok {
		t.Fatal("expected delete to report failure on client error")
	}
}
