package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestRemoteAPIErrorPredicate(t *testing.T) {
	cause := errors.New("HTTP 403")
	err := &RemoteAPIError{Operation: "list tunnels", Err: cause}

	if !IsRemoteAPIError(err) {
		t.Error("IsRemoteAPIError false for RemoteAPIError")
	}
	if !errors.Is(err, cause) {
		t.Error("RemoteAPIError does not unwrap to its cause")
	}

	wrapped := fmt.Errorf("refreshing: %w", err)
	if !IsRemoteAPIError(wrapped) {
		t.Error("IsRemoteAPIError false through wrapping")
	}

	if IsRemoteAPIError(errors.New("plain")) {
		t.Error("IsRemoteAPIError true for unrelated error")
	}
}

func TestIsAuthenticationError(t *testing.T) {
	cases := map[string]bool{
		"Authentication error (10000)": true,
		"request was unauthorized":     true,
		"Invalid token provided":       true,
		"connection refused":           false,
	}
	for msg, want := range cases {
		if got := IsAuthenticationError(errors.New(msg)); got != want {
			t.Errorf("IsAuthenticationError(%q) = %v, want %v", msg, got, want)
		}
	}
	if IsAuthenticationError(nil) {
		t.Error("IsAuthenticationError(nil) = true")
	}
}
