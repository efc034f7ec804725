package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	GetTopicAttributes(ctx context.Context, params *sns.GetTopicAttributesInput, optFns ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error)
}

func NewSNSPublisher[T Identifiable](ctx context.Context, topicArn string) (*SNSPublisher[T], error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &SNSPublisher[T]{
		Client:   sns.NewFromConfig(cfg),
		TopicArn: topicArn,
	}, nil
}

type SNSPublisher[T Identifiable] struct {
	Client   SNSAPI
	TopicArn string
}

func (s *SNSPublisher[T]) Publish(ctx context.Context, e T) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	result, err := s.Client.Publish(ctx, &sns.PublishInput{
		Message:  aws.String(string(b)),
		TopicArn: aws.String(s.TopicArn),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(e.Type()),
			},
		},
	})
	if err != nil {
		return err
	}
	logger.Debug("SNS event publish response", "message_id", aws.ToString(result.MessageId), "event", e.Identifier())
	return nil
}

func (s *SNSPublisher[T]) Close() error {
	return nil
}

func (s *SNSPublisher[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "SNS Publishing " + s.TopicArn
	if _, err := s.Client.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{
		TopicArn: aws.String(s.TopicArn),
	}); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}

type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

func NewSQSSubscriber(ctx context.Context, subConn appconfig.SQSSubscriberConfig) (*SQSSubscriber, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	maxMessages := subConn.MaxMessages
	if maxMessages <= 0 || maxMessages > 10 {
		maxMessages = 10
	}
	return &SQSSubscriber{
		Client:   sqs.NewFromConfig(cfg),
		QueueURL: subConn.QueueURL,
		Max:      int32(maxMessages),
		Wait:     20,
	}, nil
}

// SQSSubscriber consumes S3 object created notifications, directly or
// wrapped in an SNS envelope. Messages that should be retried are left on
// the queue to reappear after their visibility timeout.
type SQSSubscriber struct {
	Client   SQSAPI
	QueueURL string
	Max      int32
	Wait     int32
}

type s3Notification struct {
	Records []s3Record `json:"Records"`
	Event   string     `json:"Event"`
}

type s3Record struct {
	EventName string `json:"eventName"`
	EventTime string `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Size      int64  `json:"size"`
			ETag      string `json:"eTag"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageId string `json:"MessageId"`
	Message   string `json:"Message"`
}

// EventsFromSQSBody turns an SQS message body into blob created events.
// Object keys in S3 notifications are form encoded; the event url carries
// them path style as https://s3.amazonaws.com/{bucket}/{key}.
func EventsFromSQSBody(id, body string) ([]*BlobCreated, error) {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" {
		body = env.Message
	}

	var n s3Notification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return nil, err
	}
	if n.Event == "s3:TestEvent" {
		return nil, nil
	}
	if len(n.Records) == 0 {
		var e BlobCreated
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, err
		}
		e.SetIdentifier(id)
		return []*BlobCreated{&e}, nil
	}

	events := make([]*BlobCreated, 0, len(n.Records))
	for i, rec := range n.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("bad object key %q: %w", rec.S3.Object.Key, err)
		}
		u := url.URL{Scheme: "https", Host: "s3.amazonaws.com", Path: "/" + rec.S3.Bucket.Name + "/" + key}
		if rec.S3.Bucket.Name == "" || key == "" {
			u = url.URL{}
		}
		events = append(events, &BlobCreated{
			ID:        id + "-" + strconv.Itoa(i),
			Subject:   rec.EventName,
			EventType: BlobCreatedEventType,
			EventTime: rec.EventTime,
			Data: BlobCreatedData{
				Api:           rec.EventName,
				ETag:          rec.S3.Object.ETag,
				ContentLength: rec.S3.Object.Size,
				Url:           u.String(),
				Sequencer:     rec.S3.Object.Sequencer,
			},
		})
	}
	return events, nil
}

func (ss *SQSSubscriber) Listen(ctx context.Context, process func(context.Context, *BlobCreated) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			out, err := ss.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(ss.QueueURL),
				MaxNumberOfMessages: ss.Max,
				WaitTimeSeconds:     ss.Wait,
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, m := range out.Messages {
				ss.handle(ctx, m, process)
			}
		}
	}
}

func (ss *SQSSubscriber) handle(ctx context.Context, m sqstypes.Message, process func(context.Context, *BlobCreated) error) {
	id := aws.ToString(m.MessageId)
	events, err := EventsFromSQSBody(id, aws.ToString(m.Body))
	if err != nil {
		logger.Error("failed to get event from sqs message, discarding", "message_id", id, "error", err.Error())
		ss.delete(ctx, m)
		return
	}

	d := Complete
	for _, e := range events {
		err := process(ctx, e)
		ed := DispositionFor(err)
		if ed == DeadLetter {
			logger.Error("discarding event that cannot be archived", "message_id", id, "event", e.Identifier(), "error", err)
		}
		if ed == Redeliver {
			d = Redeliver
		}
	}
	metrics.EventsCounter.With(map[string]string{"queue": ss.QueueURL, "op": d.String()}).Inc()
	if d == Redeliver {
		return
	}
	ss.delete(ctx, m)
}

func (ss *SQSSubscriber) delete(ctx context.Context, m sqstypes.Message) {
	if _, err := ss.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(ss.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		logger.Error("failed to delete sqs message", "message_id", aws.ToString(m.MessageId), "error", err)
	}
}

func (ss *SQSSubscriber) Length(ctx context.Context) (float64, error) {
	out, err := ss.Client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(ss.QueueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, err
	}
	v, ok := out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]
	if !ok {
		return 0, errors.New("queue did not report a message count")
	}
	return strconv.ParseFloat(v, 64)
}

func (ss *SQSSubscriber) Close() error {
	return nil
}

func (ss *SQSSubscriber) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "SQS Event Subscriber " + ss.QueueURL
	if _, err := ss.Length(ctx); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}
