package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/sanitize"
)

// Related-entity tags stored in notifications.related_to.
const (
	RelatedCase    = "case"
	RelatedTask    = "task"
	RelatedMessage = "message"
	RelatedBilling = "billing"
)

// Notice is one notification to raise.
type Notice struct {
	UserID    uuid.UUID
	Title     string
	Message   string
	RelatedTo string
	RelatedID *uuid.UUID
	Data      map[string]any
}

// Notifier writes notification rows and optionally mails a copy.
// Every failure is logged and swallowed.
type Notifier struct {
	db     *gorm.DB
	mailer Mailer
	appURL string
}

// New builds a Notifier. mailer may be nil to disable e-mail.
func New(db *gorm.DB, mailer Mailer, appURL string) *Notifier {
	return &Notifier{db: db, mailer: mailer, appURL: appURL}
}

// Notify stores n for its user. Self-notifications are skipped.
func (n *Notifier) Notify(ctx context.Context, actorID uuid.UUID, in Notice) {
	if n == nil || in.UserID == uuid.Nil || in.UserID == actorID {
		return
	}

	var raw datatypes.JSON
	if len(in.Data) > 0 {
		if b, err := json.Marshal(in.Data); err == nil {
			raw = b
		}
	}

	row := models.Notification{
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		RelatedTo: in.RelatedTo,
		RelatedID: in.RelatedID,
		Data:      raw,
		CreatedAt: time.Now(),
	}
	if err := n.db.WithContext(ctx).Create(&row).Error; err != nil {
		slog.Warn("notification not stored", "user_id", in.UserID, "title", in.Title, "error", err)
		return
	}

	if n.mailer == nil {
		return
	}
	var u models.User
	if err := n.db.WithContext(ctx).Select("id", "name", "email").First(&u, "id = ?", in.UserID).Error; err != nil {
		slog.Warn("notification email skipped", "user_id", in.UserID, "error", err)
		return
	}

	// Message previews leave the system, so contact details are masked.
	subject, body := notificationEmailTemplate(u.Name, in.Title, sanitize.RedactPII(in.Message), n.appURL)

	mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.mailer.Send(mctx, u.Email, subject, body); err != nil {
		slog.Warn("notification email failed", "user_id", in.UserID, "error", err)
	}
}
