package db

import (
	"context"
	"strings"
	"testing"
)

func TestNewPool_InvalidURL(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://localhost:notaport/careclaims", 4, 1)
	if err == nil {
		t.Fatal("expected error for malformed database url")
	}
	if !strings.Contains(err.Error(), "parse database url") {
		t.Errorf("expected parse error, got %v", err)
	}
}
