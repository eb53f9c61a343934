package auth

import (
	"net/http"
	"strings"
)

const invoicesPath = "/api/v1/invoices"

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. Trailing slashes are ignored,
// so /api/v1/invoices/ is the club-wide list. Per-account checks are left to the handlers.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := strings.TrimRight(r.URL.Path, "/")
	if !strings.HasPrefix(path+"/", "/api/") {
		return "", false
	}

	account, isAccount := strings.CutPrefix(path, invoicesPath+"/")
	readOnly := r.Method == http.MethodGet || r.Method == http.MethodHead
	if isAccount && account != "" && readOnly {
		return RoleMember, true
	}
	return RoleTreasurer, true
}
