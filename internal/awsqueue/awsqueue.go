// Package awsqueue wraps Amazon SQS behind the narrow interfaces the
// queue registry, router, and correlator each need, so tests can swap
// in the in-memory fake defined alongside it (fake.go) instead of
// talking to real infrastructure.
package awsqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Client is a thin wrapper over the SQS SDK client exposing exactly
// the operations this codebase needs.
type Client struct {
	sqs *sqs.Client
}

// New builds a Client using the default AWS credential/config chain
// (environment, shared config, EC2/ECS role), matching how this
// codebase family wires its other AWS clients.
func New(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{sqs: sqs.NewFromConfig(cfg)}, nil
}

// CreateQueue creates a queue and returns its URL. Creating a queue
// that already exists with identical attributes is a no-op that
// returns the existing URL, which is what makes registry.ensure
// idempotent.
func (c *Client) CreateQueue(ctx context.Context, name string, tags map[string]string) (string, error) {
	out, err := c.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name),
		Tags:      tags,
	})
	if err != nil {
		return "", fmt.Errorf("create queue %s: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

// GetQueueURL discovers an existing queue by name, returning an empty
// string and a nil error if it does not exist.
func (c *Client) GetQueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.sqs.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		if sqsErrorIs(err, "QueueDoesNotExist") {
			return "", nil
		}
		return "", fmt.Errorf("get queue url %s: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func sqsErrorIs(err error, code string) bool {
	type apiError interface{ ErrorCode() string }
	var ae apiError
	for e := err; e != nil; {
		if a, ok := e.(apiError); ok {
			ae = a
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return ae != nil && ae.ErrorCode() == code
}

// DeleteQueue deletes a queue by URL. Deleting an already-deleted
// queue is treated as success.
func (c *Client) DeleteQueue(ctx context.Context, url string) error {
	_, err := c.sqs.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(url)})
	if err != nil && !sqsErrorIs(err, "QueueDoesNotExist") {
		return fmt.Errorf("delete queue %s: %w", url, err)
	}
	return nil
}

// SetRedrivePolicy points inputURL's dead-letter target at dlqArn
// with the given max receive count (§4.3: "maxReceiveCount = 3").
func (c *Client) SetRedrivePolicy(ctx context.Context, inputURL, dlqArn string, maxReceiveCount int) error {
	policy, err := json.Marshal(map[string]any{
		"deadLetterTargetArn": dlqArn,
		"maxReceiveCount":     maxReceiveCount,
	})
	if err != nil {
		return fmt.Errorf("marshal redrive policy: %w", err)
	}
	_, err = c.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(inputURL),
		Attributes: map[string]string{
			string(types.QueueAttributeNameRedrivePolicy): string(policy),
		},
	})
	if err != nil {
		return fmt.Errorf("set redrive policy on %s: %w", inputURL, err)
	}
	return nil
}

// QueueARN reads the ARN attribute back for a queue, needed to wire a
// redrive policy (which references the DLQ by ARN, not URL).
func (c *Client) QueueARN(ctx context.Context, url string) (string, error) {
	out, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", fmt.Errorf("get queue arn %s: %w", url, err)
	}
	return out.Attributes[string(types.QueueAttributeNameQueueArn)], nil
}

// TagQueue applies tenancy tags to a queue (§4.3: "{project, tenant,
// managedBy}").
func (c *Client) TagQueue(ctx context.Context, url string, tags map[string]string) error {
	_, err := c.sqs.TagQueue(ctx, &sqs.TagQueueInput{QueueUrl: aws.String(url), Tags: tags})
	if err != nil {
		return fmt.Errorf("tag queue %s: %w", url, err)
	}
	return nil
}

// SendMessage publishes body to the queue at url, optionally with
// string message attributes (used for the correlator's high-priority
// interrupt attribute).
func (c *Client) SendMessage(ctx context.Context, url, body string, attrs map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for k, v := range attrs {
			input.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}
	_, err := c.sqs.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", url, err)
	}
	return nil
}

// Message is one SQS message as seen by a poller.
type Message struct {
	ReceiptHandle string
	Body          string
}

// ReceiveMessages long-polls url with the given wait time and batch
// size (§4.6: "wait time 5s and batch size up to 10").
func (c *Client) ReceiveMessages(ctx context.Context, url string, waitSeconds, maxMessages int32) ([]Message, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		WaitTimeSeconds:     waitSeconds,
		MaxNumberOfMessages: maxMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", url, err)
	}
	msgs := make([]Message, len(out.Messages))
	for i, m := range out.Messages {
		msgs[i] = Message{ReceiptHandle: aws.ToString(m.ReceiptHandle), Body: aws.ToString(m.Body)}
	}
	return msgs, nil
}

// DeleteMessage acknowledges a message so it is not redelivered.
func (c *Client) DeleteMessage(ctx context.Context, url, receiptHandle string) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message from %s: %w", url, err)
	}
	return nil
}
