package pg

import (
	"strings"

	"worktrack.org/internal/access"
)

// scopeColumns names the columns of the queried row a scope refers to.
// Empty names disable the matching clause.
type scopeColumns struct {
	team     string
	creator  string
	assignee string
	user     string
}

var (
	teamColumns    = scopeColumns{team: "t.id"}
	projectColumns = scopeColumns{team: "p.team_id"}
	taskColumns    = scopeColumns{team: "k.team_id", creator: "k.created_by", assignee: "k.assignee_id"}
	userColumns    = scopeColumns{user: "u.id"}
)

// scopeCondition renders s as a boolean SQL expression. The user id is bound
// once, and only when some clause refers to it.
func scopeCondition(q *query, s access.Scope, cols scopeColumns) string {
	if s.All {
		return "true"
	}
	if s.UserID == "" || s.Empty() {
		return "false"
	}
	const uid = "{uid}"
	var ors []string
	if s.Self && cols.user != "" {
		ors = append(ors, cols.user+" = "+uid)
	}
	if s.Involved && cols.creator != "" {
		ors = append(ors, "("+cols.creator+" = "+uid+" or "+cols.assignee+" = "+uid+")")
	}
	if s.Managed {
		switch {
		case cols.user != "":
			ors = append(ors, "exists (select 1 from team_members sm join teams st on st.id = sm.team_id where sm.user_id = "+cols.user+" and st.manager_id = "+uid+")")
		case cols.team != "":
			ors = append(ors, "exists (select 1 from teams st where st.id = "+cols.team+" and st.manager_id = "+uid+")")
		}
	}
	if s.Member && cols.team != "" {
		ors = append(ors, "exists (select 1 from team_members sm where sm.team_id = "+cols.team+" and sm.user_id = "+uid+")")
	}
	if len(ors) == 0 {
		return "false"
	}
	return strings.ReplaceAll("("+strings.Join(ors, " or ")+")", uid, q.arg(s.UserID))
}
