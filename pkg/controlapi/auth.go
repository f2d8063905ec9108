package controlapi

import (
	"net/http"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// OperatorRole is the human-operator claim carried on control-API requests
// (spec §6: "inject a Byzantine fault for chaos testing (guarded by an
// operator role)"). There is no separate human-identity service in this
// core — operator claims arrive as a header set by the ingress/dashboard
// layer that authenticates the human, the same boundary kubernaut's own
// webhook server trusts for its upstream auth proxy.
type OperatorRole string

const (
	RoleViewer   OperatorRole = "viewer"
	RoleOperator OperatorRole = "operator"
)

const operatorRoleHeader = "X-Sentinel-Operator-Role"

// requireOperator rejects any request whose claimed role is not
// RoleOperator, before the handler runs. Guards only the chaos-injection
// route; every other route is reachable by RoleViewer.
func requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := OperatorRole(r.Header.Get(operatorRoleHeader))
		if role != RoleOperator {
			writeError(w, apperrors.New(apperrors.ErrorTypeAuth, "operator role required for this operation"))
			return
		}
		next(w, r)
	}
}
