// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"password_expiry_notifier/internal/domain/account"
	"password_expiry_notifier/internal/domain/notification"
	"password_expiry_notifier/internal/domain/onboarding"
	domainTelegram "password_expiry_notifier/internal/domain/telegram"
)

// Composer renders the mail for a selected account.
type Composer interface {
	Compose(ev *account.Evaluated, decision notification.Decision, now time.Time) (*ComposedMessage, error)
}

// Dispatcher delivers a composed mail and reports who received it.
type Dispatcher interface {
	Dispatch(ctx context.Context, accountEmail string, msg *ComposedMessage) ([]string, error)
}

// ReportWriter persists the outcome rows of a run and returns where they went.
type ReportWriter interface {
	Write(runID uuid.UUID, started time.Time, outcomes []notification.Outcome) (string, error)
}

// LedgerOpener opens the onboarding ledger for one run. The service closes it.
type LedgerOpener func(ctx context.Context) (onboarding.Ledger, error)

// ServiceConfig is the run-level configuration of the engine.
type ServiceConfig struct {
	RunMode     notification.RunMode
	Condition   notification.Condition
	GroupFilter string // empty disables the group filter
	SendQuota   int    // 0 means unlimited
	// SummaryChatID receives the end-of-run summary when a Telegram client is configured.
	SummaryChatID int64
}

// RunSummary is what a finished run reports to its caller.
type RunSummary struct {
	RunID        uuid.UUID
	RunMode      notification.RunMode
	StartedAt    time.Time
	FinishedAt   time.Time
	Statistics   notification.Statistics
	Outcomes     []notification.Outcome
	QuotaReached bool
	ReportPath   string
}

// runState is the mutable context of a single run, passed to every per-account step.
type runState struct {
	id       uuid.UUID
	now      time.Time
	log      *logrus.Entry
	ledger   onboarding.Ledger
	members  map[string]struct{} // nil when no group filter is set
	stats    notification.Statistics
	outcomes []notification.Outcome
	sent     int
	stopped  bool
}

// NotificationService runs the password-expiry notification pass.
type NotificationService struct {
	directory      account.Directory
	openLedger     LedgerOpener
	composer       Composer
	dispatcher     Dispatcher
	report         ReportWriter          // optional
	telegramClient domainTelegram.Client // optional
	cfg            ServiceConfig
	logger         *logrus.Logger
	now            func() time.Time
}

func NewNotificationService(
	dir account.Directory,
	openLedger LedgerOpener,
	composer Composer,
	dispatcher Dispatcher,
	report ReportWriter,
	tc domainTelegram.Client,
	cfg ServiceConfig,
	logger *logrus.Logger,
) (*NotificationService, error) {
	if err := cfg.Condition.Validate(); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	if cfg.SendQuota < 0 {
		return nil, errors.New("send quota must not be negative")
	}
	return &NotificationService{
		directory:      dir,
		openLedger:     openLedger,
		composer:       composer,
		dispatcher:     dispatcher,
		report:         report,
		telegramClient: tc,
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Run processes every enabled account once. It returns an error only when the
// run cannot start; per-account failures are logged and recorded as outcomes.
func (s *NotificationService) Run(ctx context.Context) (*RunSummary, error) {
	st := &runState{id: uuid.New(), now: s.now()}
	st.log = s.logger.WithFields(logrus.Fields{
		"run_id": st.id.String()[:8],
		"mode":   s.cfg.RunMode,
	})
	st.log.Infof("Starting password expiry run, condition %s", s.cfg.Condition.Describe())

	if s.cfg.GroupFilter != "" {
		members, err := s.directory.ListGroupMembers(ctx, s.cfg.GroupFilter)
		if err != nil {
			st.log.Errorf("Failed to resolve group filter %q: %v", s.cfg.GroupFilter, err)
			return nil, fmt.Errorf("failed to resolve group %q: %w", s.cfg.GroupFilter, err)
		}
		st.members = members
		st.log.Infof("Group filter %q has %d members", s.cfg.GroupFilter, len(members))
	}

	ledger, err := s.openLedger(ctx)
	if err != nil {
		st.log.Errorf("Failed to open onboarding ledger: %v", err)
		return nil, fmt.Errorf("failed to open onboarding ledger: %w", err)
	}
	defer func() {
		if cerr := ledger.Close(); cerr != nil {
			st.log.Warnf("Failed to close onboarding ledger: %v", cerr)
		}
	}()
	st.ledger = ledger

	records, err := s.directory.EnumerateEnabledAccounts(ctx)
	if err != nil {
		st.log.Errorf("Failed to enumerate accounts: %v", err)
		return nil, fmt.Errorf("failed to enumerate accounts: %w", err)
	}
	st.log.Infof("Found %d enabled accounts", len(records))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			st.log.Warnf("Run interrupted: %v", err)
			break
		}
		s.processAccount(ctx, st, rec)
		if st.stopped {
			st.log.Infof("Send quota of %d reached, stopping", s.cfg.SendQuota)
			break
		}
	}

	return s.finish(st), nil
}

func (s *NotificationService) processAccount(ctx context.Context, st *runState, rec *account.Record) {
	log := st.log.WithField("account", rec.ID)

	if st.members != nil {
		if _, ok := st.members[rec.ID]; !ok {
			st.stats.Count(notification.ReasonNotInGroup, false)
			st.record(rec, nil, notification.ReasonNotInGroup)
			return
		}
	}

	policy, err := s.directory.ResolvePasswordPolicy(ctx, rec)
	if err != nil {
		log.Errorf("Failed to resolve password policy: %v", err)
		st.stats.Count(notification.ReasonError, false)
		o := st.record(rec, nil, notification.ReasonError)
		o.Error = err.Error()
		return
	}
	rec.Policy = policy

	ev := account.Evaluate(rec, st.now)
	if ev.DecodeErr != nil {
		log.Warnf("Password expiry %q could not be decoded: %v", rec.RawPasswordExpiry, ev.DecodeErr)
	}

	decision := s.cfg.Condition.Decide(ev, st.ledger, st.now)
	if decision.ClearNeverExpires {
		s.clearNeverExpires(ctx, st, log, rec.ID)
	}
	if !decision.Notify {
		log.Debugf("Not notified: %s", decision.Reason)
		st.stats.Count(decision.Reason, decision.NewUser)
		st.record(rec, ev, decision.Reason)
		return
	}

	msg, err := s.composer.Compose(ev, decision, st.now)
	if err != nil {
		log.Errorf("Failed to compose message: %v", err)
		st.stats.Count(notification.ReasonError, decision.NewUser)
		o := st.record(rec, ev, notification.ReasonError)
		o.Error = err.Error()
		return
	}

	if s.cfg.RunMode == notification.RunModeReportOnly {
		st.stats.Count(notification.ReasonReportOnly, decision.NewUser)
		o := st.record(rec, ev, notification.ReasonReportOnly)
		o.Template, o.Audience, o.Subject = msg.Template, msg.Audience, msg.Subject
		return
	}

	recipients, sendErr := s.dispatcher.Dispatch(ctx, rec.Email, msg)
	if sendErr != nil {
		log.Errorf("Failed to send %s notification: %v", msg.Template, sendErr)
	} else {
		log.Infof("Sent %s notification (%s) to %s", msg.Template, msg.Audience, strings.Join(recipients, ", "))
	}

	// A failed send still advances the counters and the ledger.
	if decision.NewUser {
		if err := st.ledger.Record(ctx, rec.ID, decision.ForcedExpiry); err != nil {
			log.Errorf("Failed to record onboarding entry: %v", err)
		} else {
			log.Infof("Recorded onboarding entry, forced expiry %s", onboarding.FormatExpiry(decision.ForcedExpiry))
		}
	}

	st.stats.Count(decision.Reason, decision.NewUser)
	o := st.record(rec, ev, decision.Reason)
	o.Template, o.Audience, o.Subject = msg.Template, msg.Audience, msg.Subject
	o.Recipients = recipients
	if sendErr != nil {
		o.Error = sendErr.Error()
	}

	st.sent++
	if s.cfg.SendQuota > 0 && st.sent >= s.cfg.SendQuota {
		st.stopped = true
	}
}

// clearNeverExpires enforces the policy on a new user whose forced expiry has
// passed. Only live runs touch the directory.
func (s *NotificationService) clearNeverExpires(ctx context.Context, st *runState, log *logrus.Entry, accountID string) {
	if s.cfg.RunMode != notification.RunModeLive {
		log.Infof("Forced expiry passed; would clear %s and %s (%s run)",
			account.FlagPasswordNeverExpires, account.FlagCannotChangePassword, s.cfg.RunMode)
		return
	}
	for _, flag := range []account.Flag{account.FlagPasswordNeverExpires, account.FlagCannotChangePassword} {
		if err := s.directory.SetAccountFlag(ctx, accountID, flag, false); err != nil {
			log.Errorf("Failed to clear %s: %v", flag, err)
			continue
		}
		log.Infof("Cleared %s", flag)
	}
}

// record appends an outcome row and returns it for further filling.
func (st *runState) record(rec *account.Record, ev *account.Evaluated, reason notification.Reason) *notification.Outcome {
	o := notification.Outcome{
		AccountID:   rec.ID,
		DisplayName: rec.DisplayName,
		Email:       rec.Email,
		Status:      reason,
		Timestamp:   st.now,
	}
	if ev != nil && ev.HasExpiry {
		days := ev.DaysBeforeExpireRounded
		o.DaysBeforeExpire = &days
		o.ExpiresOn = ev.ExpiresOn
	}
	st.outcomes = append(st.outcomes, o)
	return &st.outcomes[len(st.outcomes)-1]
}

func (s *NotificationService) finish(st *runState) *RunSummary {
	summary := &RunSummary{
		RunID:        st.id,
		RunMode:      s.cfg.RunMode,
		StartedAt:    st.now,
		FinishedAt:   s.now(),
		Statistics:   st.stats,
		Outcomes:     st.outcomes,
		QuotaReached: st.stopped,
	}

	for _, line := range st.stats.Lines() {
		st.log.Info(line)
	}

	if s.report != nil {
		path, err := s.report.Write(st.id, st.now, st.outcomes)
		if err != nil {
			st.log.Errorf("Failed to write run report: %v", err)
		} else {
			summary.ReportPath = path
			st.log.Infof("Run report written to %s", path)
		}
	}

	if s.telegramClient != nil && s.cfg.SummaryChatID != 0 {
		if err := s.telegramClient.SendMessage(s.cfg.SummaryChatID, summary.Text(), nil); err != nil {
			st.log.Errorf("Failed to send run summary to chat %d: %v", s.cfg.SummaryChatID, err)
		}
	}

	st.log.Infof("Run finished in %s", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary
}

// Text renders the summary for chat delivery.
func (r *RunSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Password expiry run %s (%s)\n", r.RunID.String()[:8], r.RunMode)
	for _, line := range r.Statistics.Lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if r.QuotaReached {
		b.WriteString("Send quota reached; remaining accounts were not processed.\n")
	}
	if r.ReportPath != "" {
		fmt.Fprintf(&b, "Report: %s\n", r.ReportPath)
	}
	return b.String()
}
