package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestMemGatewayAttach(t *testing.T) {
	g := NewMemGateway("edge-1")
	ctx := context.Background()

	action, att, err := g.Attach(ctx, "edge-1", "web-tls", "vault://prod/certificates/web-tls")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if action != ActionAdded {
		t.Errorf("action = %s, want added", action)
	}
	if att.SecretID != "vault://prod/certificates/web-tls" {
		t.Errorf("secret id = %q", att.SecretID)
	}

	// Attaching the same name again is an update, not a duplicate.
	action, att, err = g.Attach(ctx, "edge-1", "web-tls", "vault://prod/certificates/web-tls-v2")
	if err != nil {
		t.Fatal(err)
	}
	if action != ActionUpdated {
		t.Errorf("action = %s, want updated", action)
	}
	if att.SecretID != "vault://prod/certificates/web-tls-v2" {
		t.Error("update did not repoint the secret reference")
	}
}

func TestMemGatewayListAndGet(t *testing.T) {
	g := NewMemGateway("edge-1")
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if _, _, err := g.Attach(ctx, "edge-1", name, "vault://prod/certificates/"+name); err != nil {
			t.Fatal(err)
		}
	}

	atts, err := g.List(ctx, "edge-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(atts) != 2 {
		t.Fatalf("listed %d attachments", len(atts))
	}
	if atts[0].Name != "alpha" || atts[1].Name != "zeta" {
		t.Error("listing is not sorted by name")
	}

	att, err := g.Get(ctx, "edge-1", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if att.Name != "alpha" {
		t.Errorf("got %q", att.Name)
	}

	if _, err := g.Get(ctx, "edge-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemGatewayRemove(t *testing.T) {
	g := NewMemGateway("edge-1")
	ctx := context.Background()

	if _, _, err := g.Attach(ctx, "edge-1", "web-tls", "vault://prod/certificates/web-tls"); err != nil {
		t.Fatal(err)
	}
	if err := g.Remove(ctx, "edge-1", "web-tls"); err != nil {
		t.Fatal(err)
	}
	if err := g.Remove(ctx, "edge-1", "web-tls"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double remove: %v", err)
	}
}

func TestMemGatewayUnknownGateway(t *testing.T) {
	g := NewMemGateway("edge-1")

	_, _, err := g.Attach(context.Background(), "nope", "web-tls", "vault://prod/certificates/web-tls")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
