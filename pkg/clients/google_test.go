package clients

import (
	"context"
	"strings"
	"testing"
)

func TestGoogleAiRequiresAPIKey(t *testing.T) {
	_, err := GoogleAi(context.Background(), "", DefaultModel)
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
