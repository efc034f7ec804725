package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
	"github.com/cdcgov/data-exchange-upload/archive-server/pkg/sloger"
	"nhooyr.io/websocket"
)

const MaxMessages = 5

func NewAMQPServiceBusClient(connString string) (*azservicebus.Client, error) {
	newWebSocketConnFn := func(ctx context.Context, args azservicebus.NewWebSocketConnArgs) (net.Conn, error) {
		opts := &websocket.DialOptions{Subprotocols: []string{"amqp"}}
		wssConn, _, err := websocket.Dial(ctx, args.Host, opts)
		if err != nil {
			return nil, err
		}

		return websocket.NetConn(ctx, wssConn, websocket.MessageBinary), nil
	}
	return azservicebus.NewClientFromConnectionString(connString, &azservicebus.ClientOptions{
		NewWebSocketConn: newWebSocketConnFn, // Setting this option so messages are sent to port 443.
	})
}

func NewAzurePublisher[T Identifiable](ctx context.Context, pubConn appconfig.AzureQueueConfig) (*AzurePublisher[T], error) {
	client, err := NewAMQPServiceBusClient(pubConn.ConnectionString)
	if err != nil {
		logger.Error("failed to connect to event service bus", "error", err)
		return nil, err
	}
	queueOrTopic := pubConn.Queue
	if queueOrTopic == "" {
		queueOrTopic = pubConn.Topic
	}
	sender, err := client.NewSender(queueOrTopic, nil)
	if err != nil {
		logger.Error("failed to configure event publisher", "error", err)
		return nil, err
	}
	adminClient, err := admin.NewClientFromConnectionString(pubConn.ConnectionString, nil)
	if err != nil {
		logger.Error("failed to connect to service bus admin client", "error", err)
		return nil, err
	}

	return &AzurePublisher[T]{
		Context:     ctx,
		Sender:      sender,
		Config:      pubConn,
		AdminClient: adminClient,
	}, nil
}

type AzurePublisher[T Identifiable] struct {
	Context     context.Context
	Sender      *azservicebus.Sender
	Config      appconfig.AzureQueueConfig
	AdminClient *admin.Client
}

func (ap *AzurePublisher[T]) Publish(ctx context.Context, event T) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	id := event.Identifier()
	eventType := event.Type()
	return ap.Sender.SendMessage(ctx, &azservicebus.Message{
		Body:      b,
		MessageID: &id,
		Subject:   &eventType,
	}, nil)
}

func (ap *AzurePublisher[T]) Close() error {
	return ap.Sender.Close(ap.Context)
}

func (ap *AzurePublisher[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE

	if ap.Config.Queue != "" {
		rsp.Service = fmt.Sprintf("Event Publishing %s", ap.Config.Queue)
		queueResp, err := ap.AdminClient.GetQueue(ctx, ap.Config.Queue, nil)
		if err != nil {
			return rsp.BuildErrorResponse(err)
		}
		if queueResp == nil {
			return rsp.BuildErrorResponse(fmt.Errorf("nil queue response"))
		}
		if *queueResp.Status != admin.EntityStatusActive {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus queue %s status: %s", ap.Config.Queue, *queueResp.Status))
		}
		return rsp
	}

	rsp.Service = fmt.Sprintf("Event Publishing %s", ap.Config.Topic)
	topicResp, err := ap.AdminClient.GetTopic(ctx, ap.Config.Topic, nil)
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	if topicResp == nil {
		return rsp.BuildErrorResponse(fmt.Errorf("nil topic response"))
	}
	if *topicResp.Status != admin.EntityStatusActive {
		return rsp.BuildErrorResponse(fmt.Errorf("service bus topic %s status: %s", ap.Config.Topic, *topicResp.Status))
	}

	return rsp
}

func NewAzureSubscriber[T Identifiable](ctx context.Context, subConn appconfig.AzureQueueConfig) (*AzureSubscriber[T], error) {
	client, err := NewAMQPServiceBusClient(subConn.ConnectionString)
	if err != nil {
		logger.Error("failed to connect to event service bus", "error", err)
		return nil, err
	}
	var receiver *azservicebus.Receiver
	if subConn.Queue != "" {
		receiver, err = client.NewReceiverForQueue(subConn.Queue, nil)
	} else {
		receiver, err = client.NewReceiverForSubscription(subConn.Topic, subConn.Subscription, nil)
	}
	if err != nil {
		logger.Error("failed to configure event subscriber", "error", err)
		return nil, err
	}
	adminClient, err := admin.NewClientFromConnectionString(subConn.ConnectionString, nil)
	if err != nil {
		logger.Error("failed to connect to service bus admin client", "error", err)
		return nil, err
	}

	maxMessages := subConn.MaxMessages
	if maxMessages == 0 {
		maxMessages = MaxMessages
	}

	return &AzureSubscriber[T]{
		Context:     ctx,
		Receiver:    receiver,
		Config:      subConn,
		AdminClient: adminClient,
		Max:         maxMessages,
	}, nil
}

func NewEventFromServiceBusMessage[T Identifiable](m *azservicebus.ReceivedMessage) (T, error) {
	var e T
	if err := decodeEvent(m.Body, &e); err != nil {
		return e, err
	}

	e.SetIdentifier(m.MessageID)

	return e, nil
}

type AzureSubscriber[T Identifiable] struct {
	Context     context.Context
	Receiver    *azservicebus.Receiver
	Config      appconfig.AzureQueueConfig
	AdminClient *admin.Client
	Max         int
}

// Listen settles every message by the disposition of its processing error:
// complete on success, abandon for redelivery when retryable, dead-letter
// otherwise.
func (as *AzureSubscriber[T]) Listen(ctx context.Context, process func(context.Context, T) error) error {
	defer as.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msgs, err := as.Receiver.ReceiveMessages(ctx, as.Max, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			for _, m := range msgs {
				logger.Info("received event", "message_id", m.MessageID)

				e, err := NewEventFromServiceBusMessage[T](m)
				if err != nil {
					logger.Error("failed to get event from service bus", "message_id", m.MessageID, "error", err.Error())
					as.deadLetter(ctx, m, err)
					continue
				}
				err = process(ctx, e)
				switch DispositionFor(err) {
				case Complete:
					if err := as.Receiver.CompleteMessage(ctx, m, nil); err != nil {
						logger.Error("failed to ack event", "error", err)
					}
				case Redeliver:
					if err := as.Receiver.AbandonMessage(ctx, m, nil); err != nil {
						logger.Error("failed to abandon event", "message_id", m.MessageID, "error", err)
					}
				default:
					as.deadLetter(ctx, m, err)
				}
				metrics.EventsCounter.With(map[string]string{"queue": as.queueName(), "op": DispositionFor(err).String()}).Inc()
			}
		}
	}
}

func (as *AzureSubscriber[T]) deadLetter(ctx context.Context, m *azservicebus.ReceivedMessage, cause error) {
	reason := "archive failed"
	description := cause.Error()
	if err := as.Receiver.DeadLetterMessage(ctx, m, &azservicebus.DeadLetterOptions{
		Reason:           &reason,
		ErrorDescription: &description,
	}); err != nil {
		sloger.FromContext(ctx).Error("failed to dead letter message", "message_id", m.MessageID, "error", err.Error())
	}
}

func (as *AzureSubscriber[T]) queueName() string {
	if as.Config.Queue != "" {
		return as.Config.Queue
	}
	return as.Config.Topic + "/" + as.Config.Subscription
}

func (as *AzureSubscriber[T]) Close() error {
	return as.Receiver.Close(as.Context)
}

func (as *AzureSubscriber[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE

	if as.Config.Queue != "" {
		rsp.Service = fmt.Sprintf("%s Event Subscriber", as.Config.Queue)
		queueResp, err := as.AdminClient.GetQueue(ctx, as.Config.Queue, nil)
		if err != nil {
			return rsp.BuildErrorResponse(err)
		}
		if queueResp == nil {
			return rsp.BuildErrorResponse(fmt.Errorf("nil queue response"))
		}
		if *queueResp.Status != admin.EntityStatusActive {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus queue %s status: %s", as.Config.Queue, *queueResp.Status))
		}
		return rsp
	}

	rsp.Service = fmt.Sprintf("%s Event Subscriber", as.Config.Subscription)
	subResp, err := as.AdminClient.GetSubscription(ctx, as.Config.Topic, as.Config.Subscription, nil)
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	if subResp == nil {
		return rsp.BuildErrorResponse(fmt.Errorf("nil subscription response"))
	}
	if *subResp.Status != admin.EntityStatusActive {
		return rsp.BuildErrorResponse(fmt.Errorf("service bus subscription %s status: %s", as.Config.Subscription, *subResp.Status))
	}

	return rsp
}

// Length reports the active message count for the queue metrics poller.
func (as *AzureSubscriber[T]) Length(ctx context.Context) (float64, error) {
	if as.Config.Queue != "" {
		props, err := as.AdminClient.GetQueueRuntimeProperties(ctx, as.Config.Queue, nil)
		if err != nil {
			return 0, err
		}
		return float64(props.ActiveMessageCount), nil
	}
	props, err := as.AdminClient.GetSubscriptionRuntimeProperties(ctx, as.Config.Topic, as.Config.Subscription, nil)
	if err != nil {
		return 0, err
	}
	return float64(props.ActiveMessageCount), nil
}
