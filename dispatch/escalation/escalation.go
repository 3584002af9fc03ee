// Package escalation implements the Escalation Engine (spec.md §4.7):
// matches a job against its company's escalation policies, walks an
// active EscalationEvent through its policy's step list on a timer, and
// resolves events manually. Grounded on the delay-gated step progression
// task_scheduler/go/scheduling/task_scheduler.go uses for Swarming task
// expiration/retry handling, generalized here to EscalationPolicy's
// JSONB-encoded trigger conditions and notification steps.
package escalation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/go/now"
	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

// triggerConditions is the decoded shape of EscalationPolicy.TriggerConditions.
// Every set field must match for the policy to apply, but a field itself
// matches on any of its listed values (spec.md §4.7: a policy can trigger
// on any of several keywords, or any of a set of priorities). An empty
// struct (no fields set) is a catch-all.
type triggerConditions struct {
	Keywords   []string `json:"keywords,omitempty"`
	Priorities []string `json:"priorities,omitempty"`
}

// step is one decoded entry of EscalationPolicy.Steps.
type step struct {
	DelayMinutes int    `json:"delayMinutes"`
	Channel      string `json:"channel"`
	Target       string `json:"target"`
}

type notification struct {
	Step    int       `json:"step"`
	SentAt  time.Time `json:"sentAt"`
	Channel string    `json:"channel"`
	Target  string    `json:"target"`
}

// TriggerEscalation implements spec.md §4.7's first operation: evaluate
// job against companyID's policies in fetch order and open an
// EscalationEvent at the first match, executing its step 0 notification.
// A job already in a terminal status, or already carrying a non-terminal
// escalation, is a no-op (spec.md §8 Id1: re-triggering an already-active
// escalation is idempotent).
func TriggerEscalation(ctx context.Context, tx pgx.Tx, jobID string) error {
	var companyID, status, description, priority string
	if err := tx.QueryRow(ctx, `SELECT company_id, status, description, priority FROM jobs WHERE job_id=$1`, jobID).
		Scan(&companyID, &status, &description, &priority); err != nil {
		return apperr.NotFound("job %s not found", jobID)
	}
	if status == schema.JobCompleted || status == schema.JobCancelled {
		return nil
	}

	var existing int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM escalation_events
		WHERE job_id=$1 AND resolved_at IS NULL AND timed_out=false`, jobID).Scan(&existing); err != nil {
		return skerr.Wrap(err)
	}
	if existing > 0 {
		return nil
	}

	policies, err := loadActivePolicies(ctx, tx, companyID)
	if err != nil {
		return err
	}
	var matched *schema.EscalationPolicy
	for i := range policies {
		if policyMatches(policies[i], description, priority) {
			matched = &policies[i]
			break
		}
	}
	if matched == nil {
		return nil
	}

	var steps []step
	if err := json.Unmarshal(matched.Steps, &steps); err != nil {
		return skerr.Wrapf(err, "decoding steps for policy %s", matched.PolicyID)
	}
	if len(steps) == 0 {
		return nil
	}

	nowTime := now.Now(ctx)
	log := []notification{{Step: 0, SentAt: nowTime, Channel: steps[0].Channel, Target: steps[0].Target}}
	logBytes, err := json.Marshal(log)
	if err != nil {
		return skerr.Wrap(err)
	}
	sendNotification(steps[0], jobID)

	_, err = tx.Exec(ctx, `
		INSERT INTO escalation_events (company_id, job_id, policy_id, current_step, notification_log, triggered_at)
		VALUES ($1, $2, $3, 0, $4, $5)`, companyID, jobID, matched.PolicyID, logBytes, nowTime)
	return skerr.Wrap(err)
}

// AdvanceResult summarizes one AdvanceEscalations tick.
type AdvanceResult struct {
	Advanced int
	TimedOut int
}

// AdvanceEscalations implements spec.md §4.7's second operation: for every
// active (unresolved, not timed out) escalation event, advances it to the
// next step once that step's delay has elapsed since the last
// notification, or marks it timed out once steps are exhausted.
func AdvanceEscalations(ctx context.Context, tx pgx.Tx) (AdvanceResult, error) {
	rows, err := tx.Query(ctx, `
		SELECT event_id, job_id, policy_id, current_step, notification_log
		FROM escalation_events
		WHERE resolved_at IS NULL AND timed_out=false`)
	if err != nil {
		return AdvanceResult{}, skerr.Wrap(err)
	}
	type active struct {
		eventID, jobID, policyID string
		currentStep              int
		log                      []byte
	}
	var events []active
	for rows.Next() {
		var a active
		if err := rows.Scan(&a.eventID, &a.jobID, &a.policyID, &a.currentStep, &a.log); err != nil {
			rows.Close()
			return AdvanceResult{}, skerr.Wrap(err)
		}
		events = append(events, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return AdvanceResult{}, skerr.Wrap(err)
	}

	var res AdvanceResult
	nowTime := now.Now(ctx)
	for _, e := range events {
		var stepsRaw []byte
		if err := tx.QueryRow(ctx, `SELECT steps FROM escalation_policies WHERE policy_id=$1`, e.policyID).Scan(&stepsRaw); err != nil {
			sklog.Warningf("escalation advance: policy %s missing for event %s: %s", e.policyID, e.eventID, err)
			continue
		}
		var steps []step
		if err := json.Unmarshal(stepsRaw, &steps); err != nil {
			sklog.Warningf("escalation advance: bad steps JSON for policy %s: %s", e.policyID, err)
			continue
		}
		var log []notification
		if err := json.Unmarshal(e.log, &log); err != nil {
			log = nil
		}

		nextIndex := e.currentStep + 1
		if nextIndex >= len(steps) {
			if _, err := tx.Exec(ctx, `UPDATE escalation_events SET timed_out=true WHERE event_id=$1`, e.eventID); err != nil {
				return res, skerr.Wrap(err)
			}
			res.TimedOut++
			continue
		}

		var lastSentAt time.Time
		for _, n := range log {
			if n.Step == e.currentStep {
				lastSentAt = n.SentAt
			}
		}
		if nowTime.Sub(lastSentAt) < time.Duration(steps[nextIndex].DelayMinutes)*time.Minute {
			continue
		}

		sendNotification(steps[nextIndex], e.jobID)
		log = append(log, notification{Step: nextIndex, SentAt: nowTime, Channel: steps[nextIndex].Channel, Target: steps[nextIndex].Target})
		logBytes, err := json.Marshal(log)
		if err != nil {
			return res, skerr.Wrap(err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE escalation_events SET current_step=$1, notification_log=$2 WHERE event_id=$3`,
			nextIndex, logBytes, e.eventID); err != nil {
			return res, skerr.Wrap(err)
		}
		res.Advanced++
	}
	return res, nil
}

// ResolveEscalation implements spec.md §4.7's third operation: closes an
// escalation event regardless of its current step. Resolving an
// already-resolved or timed-out event is a no-op.
func ResolveEscalation(ctx context.Context, tx pgx.Tx, eventID, userID string, notes *string) error {
	var resolvedAt *time.Time
	var timedOut bool
	if err := tx.QueryRow(ctx, `SELECT resolved_at, timed_out FROM escalation_events WHERE event_id=$1`, eventID).
		Scan(&resolvedAt, &timedOut); err != nil {
		return apperr.NotFound("escalation event %s not found", eventID)
	}
	if resolvedAt != nil || timedOut {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE escalation_events SET resolved_at=$1, resolved_by=$2, resolution_notes=$3 WHERE event_id=$4`,
		now.Now(ctx), userID, notes, eventID)
	return skerr.Wrap(err)
}

// ResolveActiveForJob closes every unresolved, non-timed-out escalation
// event open against jobID (spec.md §4.7: job completion/cancellation
// closes out any escalation it's carrying).
func ResolveActiveForJob(ctx context.Context, tx pgx.Tx, jobID, userID string, notes *string) error {
	rows, err := tx.Query(ctx, `
		SELECT event_id FROM escalation_events
		WHERE job_id=$1 AND resolved_at IS NULL AND timed_out=false`, jobID)
	if err != nil {
		return skerr.Wrap(err)
	}
	var eventIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return skerr.Wrap(err)
		}
		eventIDs = append(eventIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return skerr.Wrap(err)
	}
	for _, id := range eventIDs {
		if err := ResolveEscalation(ctx, tx, id, userID, notes); err != nil {
			return err
		}
	}
	return nil
}

func loadActivePolicies(ctx context.Context, tx pgx.Tx, companyID string) ([]schema.EscalationPolicy, error) {
	rows, err := tx.Query(ctx, `
		SELECT policy_id, company_id, name, trigger_conditions, steps, active, fetch_order
		FROM escalation_policies
		WHERE company_id=$1 AND active=true
		ORDER BY fetch_order ASC`, companyID)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	var out []schema.EscalationPolicy
	for rows.Next() {
		var p schema.EscalationPolicy
		if err := rows.Scan(&p.PolicyID, &p.CompanyID, &p.Name, &p.TriggerConditions, &p.Steps, &p.Active, &p.FetchOrder); err != nil {
			return nil, skerr.Wrap(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// policyMatches reports whether policy's trigger conditions match the
// job's description and priority. An empty trigger_conditions object
// matches any job (the catch-all policy), per spec.md §4.7.
func policyMatches(policy schema.EscalationPolicy, description, priority string) bool {
	var tc triggerConditions
	if err := json.Unmarshal(policy.TriggerConditions, &tc); err != nil {
		return false
	}
	if len(tc.Keywords) == 0 && len(tc.Priorities) == 0 {
		return true
	}
	if len(tc.Priorities) > 0 && !containsFold(tc.Priorities, priority) {
		return false
	}
	if len(tc.Keywords) > 0 && !anySubstringFold(tc.Keywords, description) {
		return false
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func anySubstringFold(keywords []string, haystack string) bool {
	lower := strings.ToLower(haystack)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// sendNotification is the escalation engine's outbound notification hook.
// The production wiring forwards to the company's configured channel
// (SMS/email/voice); here it only logs, matching spec.md's explicit
// non-goal on actual notification delivery providers.
func sendNotification(s step, jobID string) {
	sklog.Infof("escalation: job %s step notification via %s to %s", jobID, s.Channel, s.Target)
}
