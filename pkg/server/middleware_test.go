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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cirkelline/core/pkg/auth"
	"github.com/cirkelline/core/pkg/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		kind   domain.Kind
		status int
		code   string
	}{
		{domain.AuthMissing, http.StatusUnauthorized, "auth_missing"},
		{domain.AuthInvalid, http.StatusUnauthorized, "auth_invalid"},
		{domain.AuthExpired, http.StatusUnauthorized, "auth_expired"},
		{domain.NotFound, http.StatusNotFound, "not_found"},
		{domain.Busy, http.StatusTooManyRequests, "busy"},
		{domain.Malformed, http.StatusBadRequest, "malformed"},
		{domain.ToolUnavailable, http.StatusServiceUnavailable, "dependency_failure"},
		{domain.ToolTimeout, http.StatusServiceUnavailable, "dependency_failure"},
		{domain.DependencyFailure, http.StatusServiceUnavailable, "dependency_failure"},
		{domain.Internal, http.StatusInternalServerError, "internal"},
	}
	for _, c := range cases {
		status, code := statusFor(c.kind)
		if status != c.status || code != c.code {
			t.Errorf("kind %s: got (%d, %s), want (%d, %s)", c.kind, status, code, c.status, c.code)
		}
	}
}

func TestWriteError_OwnershipReportedAsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, domain.NewError(domain.Ownership, "caller does not own this session"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected ownership violations to surface as 404, got %d", rec.Code)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error.Code != "not_found" {
		t.Errorf("expected not_found code, got %q", body.Error.Code)
	}
}

func TestCallerFromContext_EmptyWhenUnset(t *testing.T) {
	caller := callerFromContext(context.Background())
	if caller.ID != "" {
		t.Errorf("expected zero-value caller, got %+v", caller)
	}
}

func TestCallerFromContext_ReadsStoredCaller(t *testing.T) {
	want := domain.Caller{ID: "user-1", IsAdmin: true}
	ctx := context.WithValue(context.Background(), auth.CallerContextKey, want)

	got := callerFromContext(ctx)
	if got.ID != want.ID || got.IsAdmin != want.IsAdmin {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
