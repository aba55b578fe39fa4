package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
	"warehouse-system/internal/events"
)

const (
	TemplateWelcome          = "welcome"
	TemplatePasswordReset    = "password_reset"
	TemplateVerificationCode = "verification_code"
	TemplateMinimumStock     = "minimum_stock"
)

// Sender delivers a rendered template to a registered user.
type Sender interface {
	Send(ctx context.Context, recipient, subject, template string, model interface{}) error
}

// EmailService hands emails to the mail transport as EmailRequested events.
// Only registered users can be addressed.
type EmailService struct {
	db        *gorm.DB
	publisher events.Publisher
	logger    *zap.Logger
}

func NewEmailService(db *gorm.DB, publisher events.Publisher, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailService{
		db:        db,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *EmailService) Send(ctx context.Context, recipient, subject, template string, model interface{}) error {
	var user models.User
	err := s.db.WithContext(ctx).Select("id").Where("email = ?", recipient).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("user with email %s does not exist", recipient)
	}
	if err != nil {
		return errs.Internal(err, "failed to look up recipient")
	}

	if s.publisher == nil {
		s.logger.Info("Email delivery disabled, dropping email",
			zap.String("recipient", recipient),
			zap.String("template", template))
		return nil
	}

	event := events.NewEmailRequested(recipient, subject, template, model)
	if err := s.publisher.Publish(ctx, recipient, event); err != nil {
		return errs.Internal(err, "failed to queue email")
	}

	s.logger.Info("Email queued",
		zap.String("event_id", event.EventID),
		zap.String("recipient", recipient),
		zap.String("template", template))
	return nil
}
