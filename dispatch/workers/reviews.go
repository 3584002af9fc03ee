package workers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

const reviewRequestDelay = 2 * time.Hour
const reviewBatchSize = 25

// SMSSender delivers a review-request link over SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, toPhone, body string) error
}

// EmailSender delivers a review-request link over email.
type EmailSender interface {
	SendEmail(ctx context.Context, toAddress, subject, body string) error
}

// ScheduleReviewRequest implements spec.md §4.8's scheduling half: on job
// completion, insert one pending review_requests row, deriving channel
// from the customer's available contact (phone preferred, else email).
// Called from dispatch/web's close-out handler right after jobs.Complete,
// inside the same database transaction.
func ScheduleReviewRequest(ctx context.Context, tx pgx.Tx, companyID, jobID, customerID string) error {
	var phone, email string
	if err := tx.QueryRow(ctx, `SELECT phone, email FROM customers WHERE customer_id=$1`, customerID).Scan(&phone, &email); err != nil {
		return skerr.Wrap(err)
	}
	channel := "email"
	if phone != "" {
		channel = "sms"
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO review_requests (company_id, job_id, customer_id, channel, scheduled_for)
		VALUES ($1, $2, $3, $4, $5)`,
		companyID, jobID, customerID, channel, now.Now(ctx).Add(reviewRequestDelay))
	return skerr.Wrap(err)
}

// ReviewRequestDispatcher picks up due review_requests rows and sends them
// over their assigned channel (spec.md §4.8).
type ReviewRequestDispatcher struct {
	pool  *pgxpool.Pool
	sms   SMSSender
	email EmailSender
}

func NewReviewRequestDispatcher(pool *pgxpool.Pool, sms SMSSender, email EmailSender) *ReviewRequestDispatcher {
	return &ReviewRequestDispatcher{pool: pool, sms: sms, email: email}
}

func (d *ReviewRequestDispatcher) Tick(ctx context.Context) error {
	nowTime := now.Now(ctx)
	rows, err := d.pool.Query(ctx, `
		SELECT review_request_id, customer_id, channel
		FROM review_requests
		WHERE status='pending' AND scheduled_for <= $1
		LIMIT $2`, nowTime, reviewBatchSize)
	if err != nil {
		return skerr.Wrap(err)
	}
	type due struct {
		id, customerID, channel string
	}
	var list []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.customerID, &d.channel); err != nil {
			rows.Close()
			return skerr.Wrap(err)
		}
		list = append(list, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return skerr.Wrap(err)
	}

	for _, r := range list {
		d.sendOne(ctx, r.id, r.customerID, r.channel)
	}
	return nil
}

func (d *ReviewRequestDispatcher) sendOne(ctx context.Context, reviewRequestID, customerID, channel string) {
	var phone, email string
	if err := d.pool.QueryRow(ctx, `SELECT phone, email FROM customers WHERE customer_id=$1`, customerID).Scan(&phone, &email); err != nil {
		d.markFailed(ctx, reviewRequestID)
		return
	}
	var sendErr error
	switch channel {
	case "sms":
		sendErr = d.sms.SendSMS(ctx, phone, reviewRequestBody)
	default:
		sendErr = d.email.SendEmail(ctx, email, "How did we do?", reviewRequestBody)
	}
	if sendErr != nil {
		sklog.Warningf("sending review request %s: %s", reviewRequestID, sendErr)
		d.markFailed(ctx, reviewRequestID)
		return
	}
	if _, err := d.pool.Exec(ctx, `
		UPDATE review_requests SET status='sent', sent_at=$1 WHERE review_request_id=$2`,
		now.Now(ctx), reviewRequestID); err != nil {
		sklog.Warningf("marking review request %s sent: %s", reviewRequestID, err)
	}
}

func (d *ReviewRequestDispatcher) markFailed(ctx context.Context, reviewRequestID string) {
	if _, err := d.pool.Exec(ctx, `UPDATE review_requests SET status='failed' WHERE review_request_id=$1`, reviewRequestID); err != nil {
		sklog.Warningf("marking review request %s failed: %s", reviewRequestID, err)
	}
}

const reviewRequestBody = "Thanks for choosing us! Mind leaving a quick review of your visit?"
