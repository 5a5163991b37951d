package permission

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		grant, required string
		want            bool
	}{
		{"*", "users:write", true},
		{"users:write", "users:write", true},
		{"users:*", "users:write", true},
		{"users:*", "reports:read", false},
		{"users:read", "users:write", false},
		{"users", "users:write", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Matches(tc.grant, tc.required), "grant %q required %q", tc.grant, tc.required)
	}
}

func TestMissing(t *testing.T) {
	granted := []string{"reports:read", "users:*"}
	got := Missing(granted, []string{"users:delete", "reports:write", "reports:read", " "})
	require.Equal(t, []string{"reports:write"}, got)
	require.True(t, HasAll(granted, nil))
	require.True(t, HasAll([]string{Wildcard}, []string{"anything", "else"}))
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" b", "a", "b", "", "a "})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected normalize result %v", got)
	}
	if Normalize(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestRolesExpandAndFreeze(t *testing.T) {
	r := NewRoles()
	require.NoError(t, r.Register("viewer", []string{"reports:read"}))
	require.Error(t, r.Register("viewer", nil))
	r.Freeze()
	require.Error(t, r.Register("editor", []string{"reports:write"}))

	require.Equal(t, []string{"reports:read", "users:read"}, r.Expand("viewer", []string{"users:read"}))
	require.Equal(t, []string{"x"}, r.Expand("unknown", []string{"x"}))

	var nilRoles *Roles
	require.Equal(t, []string{"y"}, nilRoles.Expand("viewer", []string{"y"}))
}
