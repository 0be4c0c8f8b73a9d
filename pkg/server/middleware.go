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

	"github.com/cirkelline/core/pkg/auth"
	"github.com/cirkelline/core/pkg/domain"
)

// authMiddleware resolves the bearer token on every request below it into
// a domain.Caller, stored on the request context under
// auth.CallerContextKey. AuthMissing/AuthInvalid/AuthExpired are all
// terminal at the edge (spec.md §7): the request never reaches a handler.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	allowAnonymous := s.deps.Config.Auth != nil && s.deps.Config.Auth.AllowAnonymous

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerTokenFromRequest(r)
		caller, err := s.deps.Resolver.Resolve(r.Context(), token, allowAnonymous)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), auth.CallerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFromContext reads the Caller a prior authMiddleware stored, per
// auth.CallerContextKey's documented contract.
func callerFromContext(ctx context.Context) domain.Caller {
	caller, _ := ctx.Value(auth.CallerContextKey).(domain.Caller)
	return caller
}

// writeError maps a domain.Error's Kind to an HTTP status and a small JSON
// body, never leaking the caller-supplied message for AuthInvalid (which
// must not distinguish unknown user from wrong credential at the edge).
func writeError(w http.ResponseWriter, err error) {
	err = domain.AsNotFound(err)
	status, code := statusFor(domain.KindOf(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": code, "message": err.Error()},
	})
}

func statusFor(kind domain.Kind) (int, string) {
	switch kind {
	case domain.AuthMissing:
		return http.StatusUnauthorized, "auth_missing"
	case domain.AuthInvalid:
		return http.StatusUnauthorized, "auth_invalid"
	case domain.AuthExpired:
		return http.StatusUnauthorized, "auth_expired"
	case domain.NotFound:
		return http.StatusNotFound, "not_found"
	case domain.Busy:
		return http.StatusTooManyRequests, "busy"
	case domain.Malformed:
		return http.StatusBadRequest, "malformed"
	case domain.ToolUnavailable, domain.ToolTimeout, domain.DependencyFailure:
		return http.StatusServiceUnavailable, "dependency_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
