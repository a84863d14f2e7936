package scanerr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := Shape("align", "fixed image is %dx%d", 0, 10)
	expected := "input_shape: align: fixed image is 0x10"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestKindThroughWrapping(t *testing.T) {
	base := Unavailable("detect", io.EOF)
	wrapped := fmt.Errorf("scan fixed: %w", base)

	if KindOf(wrapped) != ModelUnavailable {
		t.Errorf("Expected kind %s, got %s", ModelUnavailable, KindOf(wrapped))
	}
	if !Is(wrapped, ModelUnavailable) {
		t.Error("Expected Is to match model_unavailable")
	}
	if Is(wrapped, RegistrationFailure) {
		t.Error("Did not expect registration_failure")
	}
	if !errors.Is(wrapped, io.EOF) {
		t.Error("Expected underlying error to be reachable")
	}
	if !errors.Is(wrapped, &Error{Kind: ModelUnavailable}) {
		t.Error("Expected errors.Is to match on kind")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Error("Expected empty kind for plain error")
	}
	if Is(nil, IO) {
		t.Error("Expected nil error to match no kind")
	}
}
