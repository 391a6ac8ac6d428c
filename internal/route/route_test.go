package route

import (
	"testing"

	"github.com/cmux/edge/internal/errors"
)

func TestClassify(t *testing.T) {
	c := NewClassifier("cmux.sh")

	tests := []struct {
		name string
		host string
		path string
		want Intent
	}{
		{"apex root", "cmux.sh", "/", Intent{Kind: KindApex}},
		{"apex any path", "cmux.sh", "/anything", Intent{Kind: KindApex}},
		{"apex with port", "cmux.sh:8090", "/", Intent{Kind: KindApex}},
		{"apex uppercase", "CMUX.SH", "/", Intent{Kind: KindApex}},
		{
			"service worker wins on any host",
			"not-even-a-cmux-domain.example.com", "/proxy-sw.js",
			Intent{Kind: KindServiceWorkerAsset},
		},
		{
			"service worker wins on apex",
			"cmux.sh", "/proxy-sw.js",
			Intent{Kind: KindServiceWorkerAsset},
		},
		{
			"workspace",
			"workspace-3000-testvm.cmux.sh", "/html",
			Intent{Kind: KindWorkspace, Port: 3000, InstanceID: "testvm"},
		},
		{
			"workspace host with port",
			"workspace-8080-vmslug.cmux.sh:443", "/",
			Intent{Kind: KindWorkspace, Port: 8080, InstanceID: "vmslug"},
		},
		{
			"direct port",
			"port-8080-demo.cmux.sh", "/",
			Intent{Kind: KindDirectPort, Port: 8080, ScopeLabel: "demo"},
		},
		{
			"direct port max",
			"port-65535-demo.cmux.sh", "/",
			Intent{Kind: KindDirectPort, Port: 65535, ScopeLabel: "demo"},
		},
		{
			"scope default",
			"j2z9smmu.cmux.sh", "/",
			Intent{Kind: KindScopeDefault, ScopeLabel: "j2z9smmu"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.host, tt.path)
			if err != nil {
				t.Fatalf("Classify(%q, %q) error: %v", tt.host, tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Classify(%q, %q) = %+v, want %+v", tt.host, tt.path, got, tt.want)
			}
		})
	}
}

func TestClassifyInvalid(t *testing.T) {
	c := NewClassifier("cmux.sh")

	tests := []struct {
		name    string
		host    string
		wantErr *errors.EdgeError
	}{
		{"wrong suffix", "workspace-3000-testvm.example.com", errors.ErrInvalidHost},
		{"no suffix", "localhost", errors.ErrInvalidHost},
		{"nested label", "a.b.cmux.sh", errors.ErrInvalidHost},
		{"empty label", ".cmux.sh", errors.ErrInvalidHost},
		{"workspace missing id", "workspace-3000.cmux.sh", errors.ErrInvalidHost},
		{"workspace extra segment", "workspace-3000-a-b.cmux.sh", errors.ErrInvalidHost},
		{"workspace port not numeric", "workspace-abc-vmslug.cmux.sh", errors.ErrInvalidPort},
		{"port zero", "port-0-demo.cmux.sh", errors.ErrInvalidPort},
		{"port out of range", "port-70000-demo.cmux.sh", errors.ErrInvalidPort},
		{"dashed unrecognized label", "test-8080.cmux.sh", errors.ErrInvalidHost},
		{"port missing scope", "port-8080.cmux.sh", errors.ErrInvalidHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify(tt.host, "/")
			if err != tt.wantErr {
				t.Errorf("Classify(%q) error = %v, want %v", tt.host, err, tt.wantErr)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier("cmux.sh")
	first, err := c.Classify("port-8080-demo.cmux.sh", "/x")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		got, err := c.Classify("port-8080-demo.cmux.sh", "/x")
		if err != nil || got != first {
			t.Fatalf("iteration %d: got %+v (%v), want %+v", i, got, err, first)
		}
	}
}

func TestIntentScope(t *testing.T) {
	ws := Intent{Kind: KindWorkspace, Port: 3000, InstanceID: "vm1"}
	if ws.Scope() != "vm1" {
		t.Errorf("workspace scope = %q, want vm1", ws.Scope())
	}
	dp := Intent{Kind: KindDirectPort, Port: 8080, ScopeLabel: "demo"}
	if dp.Scope() != "demo" {
		t.Errorf("direct port scope = %q, want demo", dp.Scope())
	}
	if (Intent{Kind: KindApex}).Scope() != "" {
		t.Error("apex scope should be empty")
	}
}
