package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pagesplit/pagesplit/internal/store"
)

func TestLoadVariantContents_Titles(t *testing.T) {
	contents, err := loadVariantContents("", "Ship Faster, Build Better")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(contents) != 2 {
		t.Fatalf("got %d variants, want 2", len(contents))
	}
	if contents[0].Title != "Ship Faster" {
		t.Errorf("got title %q, want 'Ship Faster' (whitespace trimmed)", contents[0].Title)
	}
	if contents[1].Title != "Build Better" {
		t.Errorf("got title %q, want 'Build Better'", contents[1].Title)
	}
}

func TestLoadVariantContents_TooFewTitles(t *testing.T) {
	if _, err := loadVariantContents("", "only-one"); err == nil {
		t.Fatal("expected error for a single title")
	}
}

func TestLoadVariantContents_File(t *testing.T) {
	payloads := []store.ContentPayload{
		{Title: "A", Description: "control", CTAText: "Go", Benefits: []string{"fast"}},
		{Title: "B"},
	}
	data, err := json.Marshal(payloads)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	path := filepath.Join(t.TempDir(), "variants.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	contents, err := loadVariantContents(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(contents) != 2 {
		t.Fatalf("got %d variants, want 2", len(contents))
	}
	if contents[0].Description != "control" {
		t.Errorf("got description %q, want 'control'", contents[0].Description)
	}
}

func TestLoadVariantContents_MutuallyExclusive(t *testing.T) {
	if _, err := loadVariantContents("somefile.json", "A,B"); err == nil {
		t.Fatal("expected error when both --file and --titles are set")
	}
}

func TestLoadVariantContents_NoInput(t *testing.T) {
	if _, err := loadVariantContents("", ""); err == nil {
		t.Fatal("expected error when no variants are supplied")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("4f7a9c12-aaaa-bbbb"); got != "4f7a9c12" {
		t.Errorf("got %q, want 4f7a9c12", got)
	}
	if got := shortID("tiny"); got != "tiny" {
		t.Errorf("got %q, want tiny", got)
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(0); got != "0%" {
		t.Errorf("got %q, want 0%%", got)
	}
	if got := formatPercent(0.1234); got != "12.34%" {
		t.Errorf("got %q, want 12.34%%", got)
	}
}
