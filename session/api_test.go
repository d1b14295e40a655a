package session

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/text/language"

	scriberr "github.com/otoitsuki/scribecore/errors"
	"github.com/otoitsuki/scribecore/testutil"
)

func TestAPIClient_Create(t *testing.T) {
	backend := testutil.NewFakeBackend()
	defer backend.Close()

	api := NewAPIClient(APIClientConfig{BaseURL: backend.APIURL()})
	sess, err := api.Create(context.Background(), language.AmericanEnglish)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if sess.ID == "" {
		t.Error("ID is empty")
	}
	if sess.Language != "en-US" {
		t.Errorf("Language = %q, want %q", sess.Language, "en-US")
	}
	if sess.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
}

func TestAPIClient_FinishAndDelete(t *testing.T) {
	backend := testutil.NewFakeBackend()
	defer backend.Close()

	api := NewAPIClient(APIClientConfig{BaseURL: backend.APIURL()})
	sess, err := api.Create(context.Background(), language.AmericanEnglish)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := api.Finish(context.Background(), sess.ID); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !backend.Finished(sess.ID) {
		t.Error("backend did not record the finish")
	}

	if err := api.Delete(context.Background(), sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !backend.Deleted(sess.ID) {
		t.Error("backend did not record the delete")
	}
}

func TestAPIClient_UnknownSession(t *testing.T) {
	backend := testutil.NewFakeBackend()
	defer backend.Close()

	api := NewAPIClient(APIClientConfig{BaseURL: backend.APIURL()})

	err := api.Finish(context.Background(), "no-such-session")
	if !errors.Is(err, scriberr.ErrSessionNotFound) {
		t.Errorf("Finish() error = %v, want ErrSessionNotFound", err)
	}
	err = api.Delete(context.Background(), "no-such-session")
	if !errors.Is(err, scriberr.ErrSessionNotFound) {
		t.Errorf("Delete() error = %v, want ErrSessionNotFound", err)
	}
}
