package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckerWildcards(t *testing.T) {
	c := NewChecker(nil)
	require.True(t, c.Has(RoleTeacher, "assessment:create"))
	require.True(t, c.Has(RoleTeacher, "question:delete"))
	require.False(t, c.Has(RoleTeacher, "attempt:join"))
	require.True(t, c.Has(RoleStudent, "attempt:submit"))
	require.False(t, c.Has(RoleStudent, "assessment:create"))
	require.False(t, c.Has(RoleInactive, "attempt:join"))
	require.False(t, c.Has("", "attempt:join"))
	require.True(t, c.Any(RoleStudent, "assessment:create", "attempt:view-own"))
}

func TestParseRole(t *testing.T) {
	require.Equal(t, RoleStudent, ParseRole("STUDENT"))
	require.Equal(t, RoleTeacher, ParseRole("teacher"))
	require.Equal(t, Role(""), ParseRole("admin"))
}

func TestRequireStatusCodes(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require("attempt:join")(ok)

	cases := []struct {
		name string
		id   *Identity
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"teacher", &Identity{Subject: "t1", Role: RoleTeacher}, http.StatusForbidden},
		{"inactive", &Identity{Subject: "s2", Role: RoleInactive}, http.StatusForbidden},
		{"student", &Identity{Subject: "s1", Role: RoleStudent}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.id != nil {
				r = r.WithContext(WithIdentity(r.Context(), *tc.id))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			require.Equal(t, tc.want, w.Code)
		})
	}
}
