package service

import (
	"context"
	"errors"
	"time"

	"rent_notifications/internal/mailer"
	"rent_notifications/internal/metrics"
	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"

	"go.uber.org/zap"
)

// DueDateReader is the resolver slice the reminder runs need.
type DueDateReader interface {
	PropertiesDueOn(ctx context.Context, date time.Time) ([]models.DueItem, error)
}

// reminderWindow is one e-mail digest: unpaid properties due at a fixed
// offset from today, sent once per day to the owner address.
type reminderWindow struct {
	kind       string
	offsetDays int
	subject    string
	intro      string
}

var reminderWindows = []reminderWindow{
	{
		kind:       "reminder_3_days",
		offsetDays: 3,
		subject:    "Kujtesë: Qiraja skadon pas 3 ditësh",
		intro:      "Përshëndetje! Këto prona kanë qira që skadon pas 3 ditësh:",
	},
	{
		kind:       "reminder_1_day",
		offsetDays: 1,
		subject:    "Urgjente: Qiraja skadon nesër",
		intro:      "Kujdes! Qiraja për këto prona skadon nesër:",
	},
	{
		kind:       "due_today",
		offsetDays: 0,
		subject:    "Qiraja duhet paguar sot",
		intro:      "Qiraja për këto prona duhet paguar SOT:",
	},
	{
		kind:       "overdue_1_day",
		offsetDays: -1,
		subject:    "Qiraja është në vonesë",
		intro:      "VËMENDJE: Këto qira janë në vonesë 1 ditë:",
	},
}

// ReminderResult is one digest outcome in the run response.
type ReminderResult struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ReminderService sends the owner's daily e-mail digests. Each window is an
// independent logical notification with its own idempotency key, so a re-run
// never repeats a digest that already went out.
type ReminderService struct {
	reader     DueDateReader
	guard      *Guard
	mailer     mailer.Mailer
	ownerEmail string
	logger     *zap.Logger

	now func() time.Time
}

func NewReminderService(reader DueDateReader, guard *Guard, m mailer.Mailer, ownerEmail string, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{
		reader:     reader,
		guard:      guard,
		mailer:     m,
		ownerEmail: ownerEmail,
		logger:     logger,
		now:        time.Now,
	}
}

// Run processes every reminder window. A failure in one window is logged and
// does not block the others.
func (s *ReminderService) Run(ctx context.Context) []ReminderResult {
	today := s.now().UTC().Truncate(24 * time.Hour)
	results := make([]ReminderResult, 0, len(reminderWindows))

	for _, w := range reminderWindows {
		date := today.AddDate(0, 0, w.offsetDays)

		items, err := s.reader.PropertiesDueOn(ctx, date)
		if err != nil {
			s.logger.Error("reminder window query failed",
				zap.String("window", w.kind), zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}

		if s.sendDigest(ctx, today, w, items) {
			results = append(results, ReminderResult{Type: w.kind, Count: len(items)})
		}
	}

	return results
}

func (s *ReminderService) sendDigest(ctx context.Context, today time.Time, w reminderWindow, items []models.DueItem) bool {
	key := IdempotencyKey(models.ChannelEmail, w.kind, today, s.ownerEmail)
	log := s.logger.With(zap.String("window", w.kind), zap.String("key", key))

	already, err := s.guard.HasSucceeded(ctx, key)
	if err != nil {
		log.Error("idempotency check failed, skipping", zap.Error(err))
		return false
	}
	if already {
		log.Info("digest already sent, skipping")
		return true
	}

	html, err := mailer.DigestHTML(w.subject, w.intro, items)
	if err != nil {
		log.Error("digest render failed", zap.Error(err))
		return false
	}

	rec := &models.NotificationRecord{
		Channel:          models.ChannelEmail,
		Recipient:        s.ownerEmail,
		IdempotencyKey:   key,
		NotificationType: w.kind,
		MessageBody:      html,
	}

	if err := s.mailer.Send(ctx, mailer.Email{
		To:      s.ownerEmail,
		Subject: w.subject,
		HTML:    html,
	}); err != nil {
		msg := err.Error()
		rec.ErrorMessage = &msg
		rec.Status = models.StatusFailed

		metrics.IncEmailFailed(w.kind)
		log.Error("digest send failed", zap.Error(err))

		if rerr := s.guard.RecordFailed(ctx, rec); rerr != nil {
			metrics.IncLogWriteError()
			log.Error("notification log write failed", zap.Error(rerr))
		}
		return false
	}

	rec.Status = models.StatusSent
	metrics.IncEmailSent(w.kind)
	log.Info("digest sent", zap.Int("properties", len(items)))

	if err := s.guard.RecordSent(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateSent) {
			log.Info("sent row already recorded by another run")
		} else {
			metrics.IncLogWriteError()
			log.Error("notification log write failed after send", zap.Error(err))
		}
	}
	return true
}
