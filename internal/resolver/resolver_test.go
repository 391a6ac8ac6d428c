package resolver

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmux/edge/internal/route"
)

func testLookups() Lookups {
	return Lookups{
		WorkspaceTarget: func(ctx context.Context, id string) (string, error) {
			return "https://ws-" + id + ".internal:39379", nil
		},
		MorphPortTarget: func(ctx context.Context, scope string, port uint16) (string, error) {
			return "https://" + scope + ".internal:8443", nil
		},
		MorphScopeTarget: func(ctx context.Context, scope string) (string, error) {
			return "https://" + scope + ".internal", nil
		},
	}
}

func TestResolveWorkspace(t *testing.T) {
	b, err := New(testLookups(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	target, err := b.Resolve(context.Background(), route.Intent{
		Kind: route.KindWorkspace, Port: 3000, InstanceID: "testvm",
	})
	if err != nil {
		t.Fatal(err)
	}
	if target.URL.Host != "ws-testvm.internal:39379" {
		t.Errorf("host = %q", target.URL.Host)
	}
	if target.Scope != "testvm" {
		t.Errorf("scope = %q, want testvm", target.Scope)
	}
}

func TestResolveDirectPortAndScope(t *testing.T) {
	b, _ := New(testLookups(), Config{})

	target, err := b.Resolve(context.Background(), route.Intent{
		Kind: route.KindDirectPort, Port: 8080, ScopeLabel: "demo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if target.Scope != "demo" || target.URL.Host != "demo.internal:8443" {
		t.Errorf("got %q / %q", target.Scope, target.URL.Host)
	}

	target, err = b.Resolve(context.Background(), route.Intent{
		Kind: route.KindScopeDefault, ScopeLabel: "primary",
	})
	if err != nil {
		t.Fatal(err)
	}
	if target.Scope != "primary" || target.URL.Host != "primary.internal" {
		t.Errorf("got %q / %q", target.Scope, target.URL.Host)
	}
}

func TestResolveLookupError(t *testing.T) {
	wantErr := errors.New("instance not ready")
	lookups := testLookups()
	lookups.MorphScopeTarget = func(ctx context.Context, scope string) (string, error) {
		return "", wantErr
	}
	b, _ := New(lookups, Config{})

	_, err := b.Resolve(context.Background(), route.Intent{
		Kind: route.KindScopeDefault, ScopeLabel: "gone",
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestResolveEmptyTarget(t *testing.T) {
	lookups := testLookups()
	lookups.MorphScopeTarget = func(ctx context.Context, scope string) (string, error) {
		return "", nil
	}
	b, _ := New(lookups, Config{})

	_, err := b.Resolve(context.Background(), route.Intent{
		Kind: route.KindScopeDefault, ScopeLabel: "gone",
	})
	if err == nil || !strings.Contains(err.Error(), "empty target") {
		t.Errorf("error = %v, want empty target error", err)
	}
}

func TestResolveInsecureScheme(t *testing.T) {
	lookups := testLookups()
	lookups.MorphScopeTarget = func(ctx context.Context, scope string) (string, error) {
		return "http://10.0.0.1:8080", nil
	}

	b, _ := New(lookups, Config{})
	_, err := b.Resolve(context.Background(), route.Intent{
		Kind: route.KindScopeDefault, ScopeLabel: "local",
	})
	if err == nil || !strings.Contains(err.Error(), "insecure") {
		t.Errorf("error = %v, want insecure scheme error", err)
	}

	b, _ = New(lookups, Config{AllowInsecureUpstream: true})
	target, err := b.Resolve(context.Background(), route.Intent{
		Kind: route.KindScopeDefault, ScopeLabel: "local",
	})
	if err != nil {
		t.Fatal(err)
	}
	if target.URL.Scheme != "http" {
		t.Errorf("scheme = %q", target.URL.Scheme)
	}
}

func TestResolveApexNotResolvable(t *testing.T) {
	b, _ := New(testLookups(), Config{})
	if _, err := b.Resolve(context.Background(), route.Intent{Kind: route.KindApex}); err == nil {
		t.Error("expected error for apex intent")
	}
}

func TestResolveCache(t *testing.T) {
	var calls atomic.Int64
	lookups := testLookups()
	lookups.MorphScopeTarget = func(ctx context.Context, scope string) (string, error) {
		calls.Add(1)
		return "https://" + scope + ".internal", nil
	}

	b, _ := New(lookups, Config{CacheTTL: time.Minute, CacheSize: 8})
	intent := route.Intent{Kind: route.KindScopeDefault, ScopeLabel: "hot"}

	for i := 0; i < 5; i++ {
		if _, err := b.Resolve(context.Background(), intent); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("lookup calls = %d, want 1", calls.Load())
	}
}

func TestCacheObserverSeesHitsAndMisses(t *testing.T) {
	type event struct {
		kind string
		hit  bool
	}
	var events []event

	b, _ := New(testLookups(), Config{
		CacheTTL:  time.Minute,
		CacheSize: 8,
		CacheObserver: func(kind string, hit bool) {
			events = append(events, event{kind, hit})
		},
	})
	intent := route.Intent{Kind: route.KindWorkspace, Port: 3000, InstanceID: "vm1"}

	for i := 0; i < 3; i++ {
		if _, err := b.Resolve(context.Background(), intent); err != nil {
			t.Fatal(err)
		}
	}

	want := []event{
		{"workspace", false},
		{"workspace", true},
		{"workspace", true},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestResolveErrorsNotCached(t *testing.T) {
	var calls atomic.Int64
	lookups := testLookups()
	lookups.MorphScopeTarget = func(ctx context.Context, scope string) (string, error) {
		calls.Add(1)
		return "", errors.New("not ready")
	}

	b, _ := New(lookups, Config{CacheTTL: time.Minute, CacheSize: 8})
	intent := route.Intent{Kind: route.KindScopeDefault, ScopeLabel: "flaky"}

	for i := 0; i < 3; i++ {
		if _, err := b.Resolve(context.Background(), intent); err == nil {
			t.Fatal("expected error")
		}
	}
	if calls.Load() != 3 {
		t.Errorf("lookup calls = %d, want 3", calls.Load())
	}
}

func TestNewRequiresLookups(t *testing.T) {
	if _, err := New(Lookups{}, Config{}); err == nil {
		t.Error("expected error for missing lookups")
	}
}
