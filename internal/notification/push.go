package notification

import (
	"context"
	"fmt"
	"log"

	jobdomain "mailstream-backend/internal/job/domain"
	"mailstream-backend/pkg/fcm"
)

// Notifier fans a push notification out to all of a user's devices and
// prunes tokens the provider rejects. Nil-safe: with no FCM client
// configured every method is a no-op.
type Notifier struct {
	fcmClient *fcm.Client
	tokenRepo DeviceTokenRepository
}

func NewNotifier(fcmClient *fcm.Client, tokenRepo DeviceTokenRepository) *Notifier {
	return &Notifier{
		fcmClient: fcmClient,
		tokenRepo: tokenRepo,
	}
}

func (n *Notifier) enabled() bool {
	return n != nil && n.fcmClient != nil && n.tokenRepo != nil
}

// NotifyUser sends one notification to every registered device.
func (n *Notifier) NotifyUser(ctx context.Context, userID string, data fcm.NotificationData) {
	if !n.enabled() {
		return
	}

	tokens, err := n.tokenRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[Notifier] Error getting device tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := n.fcmClient.SendToDevices(ctx, tokenStrings, data)
	if err != nil {
		log.Printf("[Notifier] Error sending notifications to user %s: %v", userID, err)
		return
	}

	for _, token := range failedTokens {
		if err := n.tokenRepo.DeleteToken(token); err != nil {
			log.Printf("[Notifier] Error pruning failed token: %v", err)
		}
	}
}

// NotifyNewMail announces new inbox activity.
func (n *Notifier) NotifyNewMail(ctx context.Context, userID, emailAddress string, historyID uint64) {
	n.NotifyUser(ctx, userID, fcm.NotificationData{
		Title: "New mail",
		Body:  "You have new mail in your inbox",
		Data: map[string]string{
			"type":         "mail_update",
			"email":        emailAddress,
			"historyId":    fmt.Sprintf("%d", historyID),
			"click_action": "/inbox",
		},
	})
}

// NotifyJobFinished announces a tracked job reaching a terminal state.
func (n *Notifier) NotifyJobFinished(ctx context.Context, userID string, job *jobdomain.Job) {
	title := "Task complete"
	body := fmt.Sprintf("Your %s task finished successfully", job.Kind)
	if job.Status == jobdomain.StatusFailed {
		title = "Task failed"
		body = fmt.Sprintf("Your %s task did not finish", job.Kind)
	}

	n.NotifyUser(ctx, userID, fcm.NotificationData{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":     "job_update",
			"job_id":   job.ID,
			"job_kind": job.Kind,
			"status":   job.Status,
		},
	})
}
