// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package security persists security-relevant incidents: authentication
failures, rate-limiter degradation, rejected upload keys. The log is
append-only and owner-agnostic; it exists for operators, not for users, so
no row-security identity applies.
*/
package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowreader/internal/platform/database/schema"
	"github.com/taibuivan/flowreader/pkg/uuid"
)

// Event kinds recorded by the platform.
const (
	KindAuthFailure     = "auth_failure"
	KindLimiterDegraded = "limiter_degraded"
	KindRateExceeded    = "rate_exceeded"
	KindForeignKey      = "foreign_upload_key"
)

// EventLog writes incidents to the security_events table. It implements
// the rate limiter's sink contract.
type EventLog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEventLog constructs the PostgreSQL backed [EventLog].
func NewEventLog(pool *pgxpool.Pool, logger *slog.Logger) *EventLog {
	return &EventLog{pool: pool, logger: logger}
}

/*
Record appends one incident.

Description: Never blocks the request path: the insert runs on a detached
context with its own short deadline, and failures are logged rather than
surfaced. Losing an audit row beats failing a request.
*/
func (log *EventLog) Record(ctx context.Context, kind, userID, endpoint, detail string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5)
	`,
		schema.SecurityEvent.Table,
		schema.SecurityEvent.ID, schema.SecurityEvent.Kind,
		schema.SecurityEvent.UserID, schema.SecurityEvent.Endpoint, schema.SecurityEvent.Detail,
	)

	// Anonymous incidents (failed logins, unknown tokens) carry no user.
	var user *string
	if userID != "" {
		user = &userID
	}

	if _, err := log.pool.Exec(writeCtx, query, uuid.New(), kind, user, endpoint, detail); err != nil {
		log.logger.Warn("security_event_write_failed",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
	}
}
