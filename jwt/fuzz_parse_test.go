package jwt

import (
	"testing"
	"time"
)

// FuzzParse feeds arbitrary strings to Decode and Parse. Invalid input must
// produce an error, never a panic.
func FuzzParse(f *testing.F) {
	mgr, err := NewManager(Config{
		Key:        SymmetricKey{Secret: []byte("fuzz-fuzz-fuzz-fuzz-fuzz-fuzz-32")},
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "fuzz-test",
		Leeway:     30 * time.Second,
	})
	if err != nil {
		f.Fatal(err)
	}

	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJIUzI1NiJ9.e30.")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0.")

	f.Fuzz(func(t *testing.T, token string) {
		if _, err := mgr.Decode(token); err == nil && token == "" {
			t.Fatal("empty token decoded")
		}
		_, _ = mgr.Parse(token)
	})
}
