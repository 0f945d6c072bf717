package supabase

import (
	"github.com/google/uuid"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/models"
)

// Notifier delivers in-app notifications through the Supabase REST API.
// Inserting a notification row triggers Realtime on the user's channel;
// email delivery is picked up out of band from rows flagged send_email.
// Delivery is best-effort: failures are logged, never propagated.
type Notifier struct {
	client *Client
	log    *logger.Logger
}

func NewNotifier(client *Client, log *logger.Logger) *Notifier {
	return &Notifier{
		client: client,
		log:    log,
	}
}

// Notify records one notification for the user. Fire-and-forget.
func (n *Notifier) Notify(userID uuid.UUID, kind, title, body string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	row := map[string]interface{}{
		"id":         uuid.New().String(),
		"user_id":    userID.String(),
		"kind":       kind,
		"title":      title,
		"body":       body,
		"payload":    payload,
		"send_email": sendEmailFor(kind),
	}
	if _, _, err := n.client.Supabase.From("notifications").Insert(row, false, "", "", "").Execute(); err != nil {
		n.log.Warn("failed to deliver notification", "kind", kind, "user_id", userID, "error", err)
	}
}

// NotifyAll fans one notification out to several users.
func (n *Notifier) NotifyAll(userIDs []uuid.UUID, kind, title, body string, payload map[string]interface{}) {
	for _, id := range userIDs {
		n.Notify(id, kind, title, body, payload)
	}
}

// Review outcomes go to email as well as in-app; progress events stay in-app.
func sendEmailFor(kind string) bool {
	switch kind {
	case models.NotificationRegenerationApproved,
		models.NotificationRegenerationRejected,
		models.NotificationRegenerationCompleted:
		return true
	default:
		return false
	}
}
