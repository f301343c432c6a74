package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, ""), mr
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, err := store.Create(ctx, "u1", "phone-1", "tok-a", map[string]string{"platform": "ios"}, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.DeviceID != "phone-1" {
		t.Fatalf("unexpected device: %q", created.DeviceID)
	}

	found, err := store.Find(ctx, "u1", "tok-a", "phone-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.UserID != "u1" || found.DeviceInfo["platform"] != "ios" {
		t.Fatalf("unexpected session: %+v", found)
	}
}

func TestFindFailsClosed(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, err := store.Find(ctx, "u1", "tok-a", "phone-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}

	if _, err := store.Create(ctx, "u1", "phone-1", "tok-a", nil, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Find(ctx, "u1", "tok-b", "phone-1"); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch for wrong token, got %v", err)
	}
}

func TestCreateClobbersPriorSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, err := store.Create(ctx, "u1", "phone-1", "tok-a", nil, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := store.Create(ctx, "u1", "phone-1", "tok-b", nil, time.Hour); err != nil {
		t.Fatalf("second create: %v", err)
	}

	// Old token no longer matches; new one does.
	if _, err := store.Find(ctx, "u1", "tok-a", "phone-1"); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected old token to mismatch, got %v", err)
	}
	if _, err := store.Find(ctx, "u1", "tok-b", "phone-1"); err != nil {
		t.Fatalf("expected new token to match: %v", err)
	}

	// Exactly one listing entry for the device, carrying the second hash.
	infos, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one session, got %d", len(infos))
	}
	wantHash := HashToken("tok-b")
	if got := infos[0].TokenHashPrefix; got == "" || got != infosPrefix(wantHash) {
		t.Fatalf("listing carries wrong hash prefix: %q", got)
	}

	// The clobbered token's reverse index is gone.
	if _, err := store.FindByToken(ctx, "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected clobbered reverse index to be gone, got %v", err)
	}
}

func infosPrefix(hash [32]byte) string {
	s := Session{TokenHash: hash}
	return s.info().TokenHashPrefix
}

func TestFindByToken(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, err := store.Create(ctx, "u1", "", "tok-web", nil, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	sess, err := store.FindByToken(ctx, "tok-web")
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if sess.DeviceID != WebDevice {
		t.Fatalf("expected web device, got %q", sess.DeviceID)
	}
}

func TestTouchPreservesTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if _, err := store.Create(ctx, "u1", "phone-1", "tok-a", nil, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	before := mr.TTL(store.key("u1", "phone-1"))

	store.now = func() time.Time { return time.Now().Add(time.Minute) }
	store.Touch(ctx, "u1", "phone-1")

	after := mr.TTL(store.key("u1", "phone-1"))
	if after > before {
		t.Fatalf("touch must not extend TTL: before=%v after=%v", before, after)
	}

	sess, err := store.Find(ctx, "u1", "tok-a", "phone-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if sess.LastUsedAt <= sess.CreatedAt {
		t.Fatal("expected LastUsedAt to advance")
	}
}

func TestTouchSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	mr.Close()
	// Must not panic or surface an error.
	store.Touch(ctx, "u1", "phone-1")
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	existed, err := store.Revoke(ctx, "u1", "phone-1")
	if err != nil {
		t.Fatalf("revoke on empty store: %v", err)
	}
	if existed {
		t.Fatal("revoke reported a session that never existed")
	}

	if _, err := store.Create(ctx, "u1", "phone-1", "tok-a", nil, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	existed, err = store.Revoke(ctx, "u1", "phone-1")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !existed {
		t.Fatal("expected revoke to report an existing session")
	}

	if _, err := store.Find(ctx, "u1", "tok-a", "phone-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := store.FindByToken(ctx, "tok-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected reverse index gone, got %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, device := range []string{"phone-1", "phone-2", ""} {
		if _, err := store.Create(ctx, "u1", device, "tok-"+device, nil, time.Hour); err != nil {
			t.Fatalf("create %q: %v", device, err)
		}
	}
	if _, err := store.Create(ctx, "u2", "phone-9", "tok-other", nil, time.Hour); err != nil {
		t.Fatalf("create other user: %v", err)
	}

	count, err := store.RevokeAll(ctx, "u1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", count)
	}

	infos, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no sessions left, got %d", len(infos))
	}

	// Other users are untouched.
	if _, err := store.Find(ctx, "u2", "tok-other", "phone-9"); err != nil {
		t.Fatalf("unrelated session lost: %v", err)
	}
}

func TestExpiredSessionIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if _, err := store.Create(ctx, "u1", "phone-1", "tok-a", nil, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Advance the store clock past the record's absolute expiry.
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := store.Find(ctx, "u1", "tok-a", "phone-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be not found, got %v", err)
	}
}

func TestStoreUnavailableIsDistinguishable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	mr.Close()

	if _, err := store.Create(ctx, "u1", "phone-1", "tok-a", nil, time.Hour); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from create, got %v", err)
	}
	if _, err := store.Find(ctx, "u1", "tok-a", "phone-1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from find, got %v", err)
	}
}

func TestBlacklistClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	bl := NewBlacklist(store.redis, "")

	won, err := bl.Claim(ctx, "tok-a", ReasonRotated, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !won {
		t.Fatal("first claim must win")
	}

	won, err = bl.Claim(ctx, "tok-a", ReasonRotated, time.Hour)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Fatal("second claim must lose")
	}

	listed, err := bl.Contains(ctx, "tok-a")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !listed {
		t.Fatal("expected token to be blacklisted")
	}

	reason, ok, err := bl.Reason(ctx, "tok-a")
	if err != nil || !ok {
		t.Fatalf("reason: ok=%v err=%v", ok, err)
	}
	if reason != ReasonRotated {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestBlacklistEntryExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	bl := NewBlacklist(store.redis, "")

	if _, err := bl.Claim(ctx, "tok-a", ReasonLogout, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	listed, err := bl.Contains(ctx, "tok-a")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if listed {
		t.Fatal("expected blacklist entry to expire with the token")
	}
}
