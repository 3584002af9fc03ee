// Package tenant is the single chokepoint spec.md §4.9 requires: every
// read and write elsewhere in dispatch/* funnels its company-scoping
// decision through a Gateway method instead of comparing company_id
// inline. Grounded on golden/go/db/db.go's MustInitSQLDatabase pattern (one
// package-level construction point for the pool) generalized here to also
// own the tenant-scoping and audit-logging policy that sits on top of it.
package tenant

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/dispatch/db"
	"go.fieldcore.build/go/skerr"
)

// Gateway wraps the connection pool with the company-scoping and
// audit-logging policy every dispatch/* data-access call must go through.
type Gateway struct {
	pool *pgxpool.Pool
}

// NewGateway constructs a Gateway over an already-initialized pool (see
// dispatch/db.MustInitSQLDatabase).
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Pool exposes the underlying pool for packages that need to run queries
// the Gateway does not itself wrap (e.g. dispatch/web's batch-dispatch
// eligibility query), so long as they still call EffectiveCompanyID/CheckRow around
// the scoping decision.
func (g *Gateway) Pool() *pgxpool.Pool { return g.pool }

// EffectiveCompanyID resolves the company a write or scoped read should
// apply to. A platform caller may act on any company via requested; every
// other role is pinned to its own token's companyId and any client-supplied
// requested value is ignored (spec.md §4.9).
func EffectiveCompanyID(u auth.AuthUser, requested string) (string, error) {
	if u.IsPlatform() {
		if requested == "" {
			return "", apperr.Validation("platform caller must supply a companyId")
		}
		return requested, nil
	}
	return u.CompanyID, nil
}

// CheckRow enforces that a fetched row belongs to the caller's effective
// tenant. A mismatch is reported as NotFound, never as a distinguishable
// Forbidden, so a caller probing IDs cannot learn a row exists in another
// tenant (spec.md §4.9, §8 I3, scenario 6).
func CheckRow(u auth.AuthUser, rowCompanyID string) error {
	if u.IsPlatform() {
		return nil
	}
	if rowCompanyID != u.CompanyID {
		return apperr.NotFound("not found")
	}
	return nil
}

// RunTxn runs fn in a retrying serializable transaction via dispatch/db,
// then records an audit log entry for actorUserID inside the same
// transaction - audit_logs is append-only and every mutating gateway call
// writes exactly one row (spec.md §6).
func (g *Gateway) RunTxn(ctx context.Context, actorUserID, companyID, action, subject string, detail interface{}, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return db.RunTxn(ctx, g.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return recordAudit(ctx, tx, actorUserID, companyID, action, subject, detail)
	})
}

func recordAudit(ctx context.Context, tx pgx.Tx, actorUserID, companyID, action, subject string, detail interface{}) error {
	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return skerr.Wrap(err)
		}
	}
	var actor, company interface{}
	if actorUserID != "" {
		actor = actorUserID
	}
	if companyID != "" {
		company = companyID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_logs (company_id, actor_user_id, action, subject, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		company, actor, action, subject, detailJSON)
	return skerr.Wrap(err)
}
