package workers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

const membershipReminderWindow = 14 * 24 * time.Hour

// MembershipRenewalProcessor runs two passes: stamping reminded_at on
// agreements that expire within membershipReminderWindow (no message is
// sent to the customer), then expiring agreements past their date and
// auto-renewing the ones configured to.
// Both passes are conditioned on columns already set (reminded_at/
// expired_at), so a repeated tick never double-reminds or double-renews
// (spec.md §8 idempotence).
type MembershipRenewalProcessor struct {
	pool *pgxpool.Pool
}

func NewMembershipRenewalProcessor(pool *pgxpool.Pool) *MembershipRenewalProcessor {
	return &MembershipRenewalProcessor{pool: pool}
}

func (p *MembershipRenewalProcessor) Tick(ctx context.Context) error {
	nowTime := now.Now(ctx)
	if err := p.remindExpiringSoon(ctx, nowTime); err != nil {
		return err
	}
	return p.expireAndRenew(ctx, nowTime)
}

func (p *MembershipRenewalProcessor) remindExpiringSoon(ctx context.Context, nowTime time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE membership_agreements SET reminded_at=$1
		WHERE active=true AND expired_at IS NULL AND reminded_at IS NULL
			AND expires_at <= $1 + $2`,
		nowTime, membershipReminderWindow)
	return skerr.Wrap(err)
}

func (p *MembershipRenewalProcessor) expireAndRenew(ctx context.Context, nowTime time.Time) error {
	rows, err := p.pool.Query(ctx, `
		SELECT membership_id, company_id, customer_id, plan, visits_allowed, annual_fee_cents, auto_renew, expires_at
		FROM membership_agreements
		WHERE active=true AND expired_at IS NULL AND expires_at <= $1`, nowTime)
	if err != nil {
		return skerr.Wrap(err)
	}
	type expiring struct {
		id, companyID, customerID, plan string
		visitsAllowed, annualFeeCents   int
		autoRenew                       bool
		expiresAt                      time.Time
	}
	var list []expiring
	for rows.Next() {
		var e expiring
		if err := rows.Scan(&e.id, &e.companyID, &e.customerID, &e.plan, &e.visitsAllowed, &e.annualFeeCents, &e.autoRenew, &e.expiresAt); err != nil {
			rows.Close()
			return skerr.Wrap(err)
		}
		list = append(list, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return skerr.Wrap(err)
	}

	for _, e := range list {
		if _, err := p.pool.Exec(ctx, `
			UPDATE membership_agreements SET expired_at=$1, active=false WHERE membership_id=$2`,
			nowTime, e.id); err != nil {
			sklog.Warningf("expiring membership %s: %s", e.id, err)
			continue
		}
		if !e.autoRenew {
			continue
		}
		if err := p.renew(ctx, e.id, e.companyID, e.customerID, e.plan, e.visitsAllowed, e.annualFeeCents, e.expiresAt, nowTime); err != nil {
			sklog.Warningf("auto-renewing membership %s: %s", e.id, err)
		}
	}
	return nil
}

func (p *MembershipRenewalProcessor) renew(ctx context.Context, oldID, companyID, customerID, plan string, visitsAllowed, annualFeeCents int, prevExpiresAt, nowTime time.Time) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer tx.Rollback(ctx)

	term := prevExpiresAt.Sub(prevExpiresAt.AddDate(-1, 0, 0))
	newExpiry := nowTime.Add(term)
	var newID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO membership_agreements (company_id, customer_id, plan, visits_allowed, annual_fee_cents, auto_renew, started_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7)
		RETURNING membership_id`,
		companyID, customerID, plan, visitsAllowed, annualFeeCents, nowTime, newExpiry).Scan(&newID); err != nil {
		return skerr.Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO billing_triggers (company_id, membership_id, kind, amount_cents, fired_at)
		VALUES ($1, $2, 'renewal', $3, $4)`, companyID, newID, annualFeeCents, nowTime); err != nil {
		return skerr.Wrap(err)
	}
	return tx.Commit(ctx)
}
