// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cirkelline/core/pkg/domain"
)

// Querier is the Gateway's single query-building entry point for
// cross-cutting reads/writes that are not already the province of a
// dialect-aware store. It injects domain.CanAccess's isolation predicate
// into every statement so call sites never hand-roll an ownership WHERE
// clause.
type Querier struct {
	gateway *Gateway
	caller  domain.Caller
}

func (q *Querier) placeholder(n int) string {
	if q.gateway.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// OwnerPredicate returns a SQL boolean expression equivalent to
// domain.CanAccess for rows in a table with owner_id and access_level
// columns, plus its bind arguments in order. Callers AND this fragment
// into their own WHERE clause; sharedLevel is the access_level value
// that grants admins visibility (domain.AccessSharedWithAdmins).
func (q *Querier) OwnerPredicate(startAt int) (string, []interface{}) {
	predicate := fmt.Sprintf(
		"(owner_id = %s OR (%s AND access_level = %s))",
		q.placeholder(startAt), q.placeholder(startAt+1), q.placeholder(startAt+2),
	)
	return predicate, []interface{}{q.caller.ID, q.caller.IsAdmin, string(domain.AccessSharedWithAdmins)}
}

// QueryRowContext runs query (which the caller has already built using
// OwnerPredicate where row visibility matters) under the Gateway's
// request timeout.
func (q *Querier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, cancel := q.gateway.WithTimeout(ctx)
	defer cancel()
	return q.gateway.db.QueryRowContext(ctx, query, args...)
}

// QueryContext runs query under the Gateway's request timeout. The
// returned rows outlive the derived context (database/sql detaches
// cursor iteration from the context once the call returns), so canceling
// a deadline mid-scan still surfaces as a rows.Err().
func (q *Querier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, cancel := q.gateway.WithTimeout(ctx)
	defer cancel()
	rows, err := q.gateway.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "scoped query", err)
	}
	return rows, nil
}

// ExecContext runs a write under the Gateway's request timeout, with no
// retry — use Gateway.RetryWrite to wrap a call site whose statement is
// idempotent.
func (q *Querier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := q.gateway.WithTimeout(ctx)
	defer cancel()
	result, err := q.gateway.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "scoped exec", err)
	}
	return result, nil
}
