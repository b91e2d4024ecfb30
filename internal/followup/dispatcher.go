// Package followup reacts to call outcomes: it registers opt-outs in the DNC
// registry and sends follow-up SMS and email to interested leads.
package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campaign-dialer/internal/calls"
	"campaign-dialer/internal/leads"
	"campaign-dialer/internal/telephony"
	"campaign-dialer/pkg/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Registry is the DNC view the dispatcher needs.
type Registry interface {
	Add(ctx context.Context, phone, reason string) error
	IsListed(ctx context.Context, phone string) (bool, error)
}

// SMSSender sends a text message. telephony adapters satisfy it.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ScriptResolver returns the script id an agent instance dials with.
type ScriptResolver func(instanceID string) string

type Config struct {
	SMSEnabled   bool
	EmailEnabled bool

	// MaxInFlight bounds concurrent follow-up sends.
	MaxInFlight int
	// SendTimeout bounds one follow-up (both legs).
	SendTimeout time.Duration
}

// Dispatcher subscribes to ledger changes. SMS, Mailer, Leads and Scripts
// may be nil when the corresponding channel is disabled.
type Dispatcher struct {
	cfg     Config
	dnc     Registry
	sms     SMSSender
	mailer  Mailer
	leads   leads.Store
	scripts *telephony.Scripts
	scriptF ScriptResolver

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

type Deps struct {
	DNC      Registry
	SMS      SMSSender
	Mailer   Mailer
	Leads    leads.Store
	Scripts  *telephony.Scripts
	ScriptOf ScriptResolver
}

var ErrSuppressed = errors.New("followup: contact suppressed by dnc")

func NewDispatcher(cfg Config, d Deps) *Dispatcher {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:     cfg,
		dnc:     d.DNC,
		sms:     d.SMS,
		mailer:  d.Mailer,
		leads:   d.Leads,
		scripts: d.Scripts,
		scriptF: d.ScriptOf,
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// OnChange is a calls.Listener. Opt-outs are registered before it returns;
// follow-ups run in the background so webhook acknowledgement never waits on
// a provider or SMTP relay.
func (d *Dispatcher) OnChange(ctx context.Context, ch calls.Change) {
	c := ch.After
	log := logger.From(ctx).With("call_id", c.ID)

	if ch.Effect.OptedOut && c.OptedOut {
		if err := d.dnc.Add(ctx, c.ToNumber, fmt.Sprintf("opted out on call %s", c.ID)); err != nil {
			log.Error("dnc registration failed", "err", err)
		}
	}

	if ch.Effect.OutcomeSet && c.Outcome.WantsFollowUp() && !c.OptedOut {
		if !d.cfg.SMSEnabled && !d.cfg.EmailEnabled {
			log.Debug("follow-up disabled", "outcome", c.Outcome)
			return
		}
		bg := logger.With(context.WithoutCancel(ctx), log)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.sem.Acquire(bg, 1); err != nil {
				return
			}
			defer d.sem.Release(1)

			sendCtx, cancel := context.WithTimeout(bg, d.cfg.SendTimeout)
			defer cancel()
			err := d.Send(sendCtx, c)
			switch {
			case errors.Is(err, ErrSuppressed):
				log.Info("follow-up suppressed by dnc")
			case err != nil:
				log.Warn("follow-up incomplete", "err", err)
			}
		}()
	}
}

// Wait blocks until background sends finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Send delivers the follow-up for c on every enabled channel concurrently.
// Each channel re-checks DNC immediately before sending.
func (d *Dispatcher) Send(ctx context.Context, c calls.Call) error {
	sc := d.scripts.Get(d.scriptID(c.AgentInstanceID))

	var g errgroup.Group
	if d.cfg.SMSEnabled && d.sms != nil {
		g.Go(func() error {
			if err := d.gate(ctx, c.ToNumber); err != nil {
				return fmt.Errorf("sms: %w", err)
			}
			if err := d.sms.SendSMS(ctx, c.ToNumber, sc.SMSFollowUp); err != nil {
				return fmt.Errorf("sms: %w", err)
			}
			logger.From(ctx).Info("follow-up sms sent", "to", c.ToNumber)
			return nil
		})
	}
	if d.cfg.EmailEnabled && d.mailer != nil && d.leads != nil {
		g.Go(func() error {
			lead, err := d.leads.Get(ctx, c.LeadID)
			if err != nil {
				return fmt.Errorf("email: lead lookup: %w", err)
			}
			if lead.Email == "" {
				return nil
			}
			if err := ValidateAddress(lead.Email); err != nil {
				return fmt.Errorf("email: %w", err)
			}
			if err := d.gate(ctx, c.ToNumber); err != nil {
				return fmt.Errorf("email: %w", err)
			}
			if err := d.mailer.Send(ctx, Email{To: lead.Email, Subject: sc.EmailSubject, Body: sc.EmailBody}); err != nil {
				return fmt.Errorf("email: %w", err)
			}
			logger.From(ctx).Info("follow-up email sent", "lead_id", lead.ID)
			return nil
		})
	}
	return g.Wait()
}

// gate fails closed: a DNC lookup error suppresses the send.
func (d *Dispatcher) gate(ctx context.Context, phone string) error {
	listed, err := d.dnc.IsListed(ctx, phone)
	if err != nil {
		return fmt.Errorf("dnc check: %w", err)
	}
	if listed {
		return ErrSuppressed
	}
	return nil
}

func (d *Dispatcher) scriptID(instanceID string) string {
	if d.scriptF == nil {
		return telephony.DefaultScriptID
	}
	return d.scriptF(instanceID)
}
