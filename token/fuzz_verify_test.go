package token

import (
	"testing"
	"time"
)

// FuzzVerify exercises the verifier with arbitrary token strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzVerify(f *testing.F) {
	c, err := NewCodec(Config{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL: 5 * time.Minute,
		Issuer:    "fuzz-test",
		Leeway:    30 * time.Second,
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, err := c.IssueAccess("u1")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := c.Verify(input)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("Verify returned nil claims without error")
		}
		if claims.Subject == "" {
			t.Fatal("Verify accepted a token with empty subject")
		}
	})
}
