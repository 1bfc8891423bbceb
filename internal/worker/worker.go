package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/email"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/queue"
	"github.com/go-co-op/gocron/v2"
)

type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// Notifier turns reservation notifications into emails.
type Notifier struct {
	users  UserLookup
	mailer Mailer
}

func NewNotifier(users UserLookup, mailer Mailer) *Notifier {
	return &Notifier{users: users, mailer: mailer}
}

// Handle processes one notification. Unknown users are logged and skipped
// so a bad record cannot stall the consumer.
func (n *Notifier) Handle(ctx context.Context, event kafka.ReservationEvent) error {
	user, err := n.users.GetUser(ctx, event.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("skip notification pnr=%s: user %d not found", event.PNR, event.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user %d: %w", event.UserID, err)
	}

	return n.mailer.Send(ctx, email.Compose(event, *user))
}

type Auditor interface {
	AuditQueues(ctx context.Context) ([]queue.Violation, error)
}

// RunAudit checks every queue once. The auditor logs each violation.
func RunAudit(ctx context.Context, auditor Auditor) []queue.Violation {
	violations, err := auditor.AuditQueues(ctx)
	if err != nil {
		log.Printf("queue audit failed: %v", err)
		return nil
	}
	log.Printf("queue audit finished violations=%d", len(violations))
	return violations
}

// NewAuditScheduler registers the periodic queue audit. The caller starts
// and shuts down the scheduler.
func NewAuditScheduler(ctx context.Context, auditor Auditor, interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("audit interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { RunAudit(ctx, auditor) }),
		gocron.WithName("queue-audit"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("register queue audit: %w", err)
	}
	return s, nil
}
