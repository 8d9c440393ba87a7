package rbac

type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleTeacher  Role = "TEACHER"
	RoleInactive Role = "INACTIVE"
)

// ParseRole normalizes a stored role; unknown values map to "".
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleInactive:
		return Role(s)
	case "student":
		return RoleStudent
	case "teacher":
		return RoleTeacher
	}
	return ""
}

// Default policy. INACTIVE accounts hold no permissions.
var RolePermissions = map[Role][]string{
	RoleStudent: {
		"assessment:list-published",
		"attempt:join",
		"attempt:respond",
		"attempt:submit",
		"attempt:view-own",
	},
	RoleTeacher: {
		"assessment:*",
		"question:*",
		"attempt:view-all",
		"attempt:feedback",
	},
	RoleInactive: {},
}
