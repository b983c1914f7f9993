package dispatch

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type fakeStatusError struct {
	code int
}

func (e *fakeStatusError) Error() string   { return "upstream error" }
func (e *fakeStatusError) StatusCode() int { return e.code }

func TestWrapUpstreamErrorMapsStatusToKind(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, ErrKindAuthentication},
		{http.StatusForbidden, ErrKindPermissionDenied},
		{http.StatusNotFound, ErrKindNotFound},
		{http.StatusConflict, ErrKindConflict},
		{http.StatusBadGateway, ErrKindUpstream},
	}
	for _, c := range cases {
		got := WrapUpstreamError("t", &fakeStatusError{code: c.status})
		if got.Kind != c.want {
			t.Fatalf("status %d: expected kind %v, got %v", c.status, c.want, got.Kind)
		}
	}
}

func TestWrapUpstreamErrorDetectsCancellation(t *testing.T) {
	got := WrapUpstreamError("t", context.Canceled)
	if got.Kind != ErrKindCancelled {
		t.Fatalf("expected ErrKindCancelled, got %v", got.Kind)
	}
	if !IsCancelled(got) {
		t.Fatal("expected IsCancelled to report true")
	}
}

func TestDispatchErrorHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want int
	}{
		{ErrKindAuthentication, http.StatusUnauthorized},
		{ErrKindPermissionDenied, http.StatusForbidden},
		{ErrKindConflict, http.StatusConflict},
		{ErrKindCancelled, 499},
	}
	for _, c := range cases {
		de := &DispatchError{Kind: c.kind}
		if got := de.HTTPStatus(); got != c.want {
			t.Fatalf("kind %v: expected status %d, got %d", c.kind, c.want, got)
		}
	}
}

func TestAsDispatchErrorMatchesOnlyTheErrorChain(t *testing.T) {
	base := errors.New("boom")
	de := NewUpstreamError("t", base)
	wrapped := errors.New("context: " + de.Error())
	if AsDispatchError(wrapped) != nil {
		t.Fatal("expected a plainly-wrapped string error to not resolve to a DispatchError")
	}
	if AsDispatchError(de) != de {
		t.Fatal("expected AsDispatchError to return the same DispatchError instance")
	}
}
