package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := WithMetadata(CodeTimeNotElapsed, "wait", map[string]any{"remainingMinutes": 3})
	err := fmt.Errorf("complete sabotage: %w", base)
	if got := CodeOf(err); got != CodeTimeNotElapsed {
		t.Fatalf("code = %s", got)
	}
	if !errors.Is(err, New(CodeTimeNotElapsed, "")) {
		t.Fatalf("errors.Is should match by code")
	}
	if errors.Is(err, New(CodeTimeExpired, "")) {
		t.Fatalf("errors.Is should not match a different code")
	}
	if MetadataOf(err)["remainingMinutes"] != 3 {
		t.Fatalf("metadata lost through wrapping")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Fatalf("nil error should have no code")
	}
	if CodeOf(errors.New("boom")) != CodeUnknown {
		t.Fatalf("plain error should be unknown")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:          http.StatusNotFound,
		CodeInvalidConfig:     http.StatusBadRequest,
		CodeAlreadyCompleted:  http.StatusConflict,
		CodeAlreadyControlled: http.StatusConflict,
		CodeTeamNotInSession:  http.StatusForbidden,
		CodeWrongAnswer:       http.StatusUnprocessableEntity,
		CodeUnknown:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s: status %d, want %d", code, got, want)
		}
	}
	if CodeAlreadyCompleted.Slug() != "already_completed" {
		t.Fatalf("unexpected slug %q", CodeAlreadyCompleted.Slug())
	}
}
