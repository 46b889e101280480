package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"carpark-vacancy-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Transitions returns the carparks that came back from full: previously a
// confirmed 0 available, now a known count above 0. Unknown readings never
// trigger an alert in either direction.
func Transitions(prev, cur map[string]model.Snapshot) []string {
	var ids []string
	for id, now := range cur {
		before, ok := prev[id]
		if !ok || before.Available == nil || now.Available == nil {
			continue
		}
		if *before.Available == 0 && *now.Available > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// WorkerPool manages a pool of workers for sending availability alerts.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case carparkID := <-wp.jobs:
			log.Printf("Worker %d processing carpark %s", id, carparkID)
			wp.sendNotificationsForCarpark(ctx, carparkID)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(carparkID string) {
	wp.jobs <- carparkID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

// sendNotificationsForCarpark fetches subscriptions and sends alerts for a
// carpark that has spaces again.
func (wp *WorkerPool) sendNotificationsForCarpark(ctx context.Context, carparkID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_carpark_mapping scm ON scm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("scm.carpark_id = ?", carparkID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for carpark %s: %v", carparkID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for carpark %s", len(subscriptions), carparkID)

	var carpark model.Carpark
	label := carparkID
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&carpark, "id = ?", carparkID).Error; err != nil {
		log.Printf("Error fetching carpark %s: %v", carparkID, err)
	} else if carpark.Name != "" {
		label = carpark.Name
	}

	message := fmt.Sprintf("Carpark %s has spaces available again!", label)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
