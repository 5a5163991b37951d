package flows

import (
	"errors"
	"testing"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/portalauth/jwt"
)

func claimsFor(id string, kind jwt.Kind) *jwt.Claims {
	return &jwt.Claims{Kind: kind, RegisteredClaims: gojwt.RegisteredClaims{ID: id, Subject: "u-1"}}
}

type verifyStub struct {
	decoded     *jwt.Claims
	decodeErr   error
	expired     bool
	parseErr    error
	blacklisted bool
	ledgerErr   error
	parsed      int
}

func (s *verifyStub) deps() VerifyDeps {
	return VerifyDeps{
		Decode:  func(string) (*jwt.Claims, error) { return s.decoded, s.decodeErr },
		Expired: func(*jwt.Claims) bool { return s.expired },
		Parse: func(string) (*jwt.Claims, error) {
			s.parsed++
			if s.parseErr != nil {
				return nil, s.parseErr
			}
			return s.decoded, nil
		},
		Blacklisted: func(string) (bool, error) { return s.blacklisted, s.ledgerErr },
	}
}

func TestRunVerify(t *testing.T) {
	tests := []struct {
		name      string
		stub      verifyStub
		kind      jwt.Kind
		want      Reason
		wantParse bool
	}{
		{
			name:      "valid",
			stub:      verifyStub{decoded: claimsFor("a", jwt.KindAccess)},
			kind:      jwt.KindAccess,
			want:      ReasonNone,
			wantParse: true,
		},
		{
			name: "undecodable",
			stub: verifyStub{decodeErr: errors.New("bad base64")},
			kind: jwt.KindAccess,
			want: ReasonMalformed,
		},
		{
			name: "blacklisted wins over expired",
			stub: verifyStub{decoded: claimsFor("a", jwt.KindAccess), blacklisted: true, expired: true},
			kind: jwt.KindAccess,
			want: ReasonBlacklisted,
		},
		{
			name: "expired skips signature",
			stub: verifyStub{decoded: claimsFor("a", jwt.KindAccess), expired: true},
			kind: jwt.KindAccess,
			want: ReasonExpired,
		},
		{
			name:      "bad signature",
			stub:      verifyStub{decoded: claimsFor("a", jwt.KindAccess), parseErr: jwt.ErrMalformed},
			kind:      jwt.KindAccess,
			want:      ReasonMalformed,
			wantParse: true,
		},
		{
			name:      "expired during parse",
			stub:      verifyStub{decoded: claimsFor("a", jwt.KindAccess), parseErr: jwt.ErrExpired},
			kind:      jwt.KindAccess,
			want:      ReasonExpired,
			wantParse: true,
		},
		{
			name:      "wrong kind",
			stub:      verifyStub{decoded: claimsFor("a", jwt.KindRefresh)},
			kind:      jwt.KindAccess,
			want:      ReasonWrongType,
			wantParse: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := tc.stub
			res := RunVerify("token", tc.kind, stub.deps())
			if res.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, res.Reason)
			}
			if res.Valid() != (tc.want == ReasonNone) {
				t.Fatalf("Valid() = %v for reason %q", res.Valid(), res.Reason)
			}
			if (stub.parsed > 0) != tc.wantParse {
				t.Fatalf("parse called %d times", stub.parsed)
			}
		})
	}
}

func TestRunVerifyLedgerError(t *testing.T) {
	boom := errors.New("ledger down")
	stub := verifyStub{decoded: claimsFor("a", jwt.KindAccess), ledgerErr: boom}

	res := RunVerify("token", jwt.KindAccess, stub.deps())
	if !errors.Is(res.Err, boom) || res.Valid() {
		t.Fatalf("expected ledger error, got %+v", res)
	}
}

func TestFamilyOf(t *testing.T) {
	if got := FamilyOf(nil); got != "" {
		t.Fatalf("expected empty family for nil claims, got %q", got)
	}
	root := claimsFor("root", jwt.KindRefresh)
	if got := FamilyOf(root); got != "root" {
		t.Fatalf("first token names its family, got %q", got)
	}
	child := claimsFor("child", jwt.KindRefresh)
	child.FamilyID = "root"
	if got := FamilyOf(child); got != "root" {
		t.Fatalf("expected family root, got %q", got)
	}
}
