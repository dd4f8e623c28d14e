package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	authrepo "mailstream-backend/internal/auth/repository"
	"mailstream-backend/internal/ingest/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// PubSubService pulls Gmail watch notifications from a Pub/Sub
// subscription and hands them to the ingestion engine. It complements
// the push endpoint for deployments that cannot accept inbound pushes.
type PubSubService struct {
	pubsubClient *pubsub.Client
	userRepo     authrepo.UserRepository
	ingest       usecase.IngestUsecase
	notifier     *Notifier
	topicName    string
	subName      string
}

func NewPubSubService(projectID, topicName, credentialsFile string, userRepo authrepo.UserRepository, ingest usecase.IngestUsecase, notifier *Notifier) (*PubSubService, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &PubSubService{
		pubsubClient: client,
		userRepo:     userRepo,
		ingest:       ingest,
		notifier:     notifier,
		topicName:    topicName,
		subName:      topicName + "-sub", // Convention: topic-sub
	}, nil
}

// Start blocks receiving messages until ctx is cancelled. Run it in its
// own goroutine.
func (s *PubSubService) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		// Always ack; a lost notification is covered by the scheduler
		// and redelivery would only repeat work the upserts absorb.
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *PubSubService) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification gmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	log.Printf("[PubSub] Notification for: %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)

	// The ingest usecase owns deduplication and the background sync.
	s.ingest.HandleNotification(notification.EmailAddress, notification.HistoryID)

	if s.notifier != nil {
		user, err := s.userRepo.FindByEmail(notification.EmailAddress)
		if err != nil || user == nil {
			return
		}
		go s.notifier.NotifyNewMail(context.Background(), user.ID, notification.EmailAddress, notification.HistoryID)
	}
}
