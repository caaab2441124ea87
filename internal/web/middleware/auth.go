package middleware

import (
	"context"
	"net/http"
	"strings"
)

// The demo host does not run its own login; it trusts identity headers set
// by a fronting auth proxy, the way a wiki engine hands an embedded plugin
// an already-authenticated user. Requests without the user header act as
// guests.
const (
	userHeader   = "X-Wiki-User"
	groupsHeader = "X-Wiki-Groups"
)

type identityKey struct{}

// RemoteIdentity is the authenticated principal of a request, or the zero
// value for guests.
type RemoteIdentity struct {
	Name   string
	Groups []string
	Admin  bool
}

// Identity resolves the proxy-supplied identity headers into the request
// context. A user is an admin when listed in adminUsers or member of the
// "admin" group.
func Identity(adminUsers []string) func(http.Handler) http.Handler {
	admins := make(map[string]bool, len(adminUsers))
	for _, u := range adminUsers {
		if u = strings.TrimSpace(u); u != "" {
			admins[u] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := RemoteIdentity{Name: strings.TrimSpace(r.Header.Get(userHeader))}
			if id.Name != "" {
				for _, g := range strings.Split(r.Header.Get(groupsHeader), ",") {
					if g = strings.TrimSpace(g); g != "" {
						id.Groups = append(id.Groups, g)
					}
				}
				id.Admin = admins[id.Name]
				for _, g := range id.Groups {
					if g == "admin" {
						id.Admin = true
					}
				}
			}
			ctx := context.WithValue(r.Context(), identityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity resolved by Identity, or the
// guest zero value.
func IdentityFromContext(ctx context.Context) RemoteIdentity {
	id, _ := ctx.Value(identityKey{}).(RemoteIdentity)
	return id
}
