package internal

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestSessionSelectAndCurrent(t *testing.T) {
	s := NewSession()

	if _, err := s.Current(); !errors.Is(err, ErrNoVaultSelected) {
		t.Fatalf("Current on empty session: %v", err)
	}

	if prior := s.Select("prod"); prior != "" {
		t.Errorf("first Select returned prior %q", prior)
	}
	current, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if current != "prod" {
		t.Errorf("Current = %q", current)
	}

	if prior := s.Select("staging"); prior != "prod" {
		t.Errorf("Select returned prior %q, want prod", prior)
	}
}

func TestSessionResolve(t *testing.T) {
	s := NewSession()
	s.Select("prod")

	got, err := s.Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "prod" {
		t.Errorf("Resolve(\"\") = %q", got)
	}

	got, err = s.Resolve("other")
	if err != nil {
		t.Fatal(err)
	}
	if got != "other" {
		t.Errorf("explicit Resolve = %q", got)
	}
}

func TestSessionResolveEmpty(t *testing.T) {
	s := NewSession()
	if _, err := s.Resolve(""); !errors.Is(err, ErrNoVaultSelected) {
		t.Errorf("Resolve on empty session: %v", err)
	}
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := NewSession()
	s.Select("seed")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Select(fmt.Sprintf("vault-%d", n))
		}(i)
		go func() {
			defer wg.Done()
			if v, err := s.Current(); err != nil || v == "" {
				t.Errorf("Current during churn: %q, %v", v, err)
			}
		}()
	}
	wg.Wait()
}
