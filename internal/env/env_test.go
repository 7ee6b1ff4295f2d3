package env

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestMergePrecedence(t *testing.T) {
	t.Setenv("ENV_TEST_BASE", "from-os")
	t.Setenv("ENV_TEST_SHADOWED", "os-value")

	tab := New()
	tab.UseOS()
	tab.Set("ENV_TEST_SHADOWED", "global-value")
	tab.Set("ENV_TEST_GLOBAL", "gv")

	got := tab.Merge([]string{"ENV_TEST_SHADOWED=service-value", "ENV_TEST_LOCAL=lv"})

	want := map[string]string{
		"ENV_TEST_BASE":     "from-os",
		"ENV_TEST_SHADOWED": "service-value",
		"ENV_TEST_GLOBAL":   "gv",
		"ENV_TEST_LOCAL":    "lv",
	}
	for k, v := range want {
		if !slices.Contains(got, k+"="+v) {
			t.Fatalf("missing %s=%s in %v", k, v, got)
		}
	}
}

func TestMergeWithoutOSBase(t *testing.T) {
	t.Setenv("ENV_TEST_HIDDEN", "should-not-leak")
	tab := New()
	tab.Set("ONLY", "v")
	got := tab.Merge(nil)
	if len(got) != 1 || got[0] != "ONLY=v" {
		t.Fatalf("unexpected merge result: %v", got)
	}
}

func TestMergeExpandsReferences(t *testing.T) {
	tab := New()
	tab.Set("HOME_DIR", "/srv/app")
	tab.Set("DATA_DIR", "${HOME_DIR}/data")
	got := tab.Merge(nil)
	if !slices.Contains(got, "DATA_DIR=/srv/app/data") {
		t.Fatalf("expansion missing: %v", got)
	}
}

func TestMergeSkipsMalformedEntries(t *testing.T) {
	tab := New()
	got := tab.Merge([]string{"=nokey", "novalue", "OK=1"})
	if len(got) != 1 || got[0] != "OK=1" {
		t.Fatalf("unexpected merge result: %v", got)
	}
}

func TestMergeIsStable(t *testing.T) {
	tab := New()
	tab.SetAll([]string{"B=2", "A=1", "C=3"})
	first := tab.Merge(nil)
	second := tab.Merge(nil)
	if !slices.Equal(first, second) {
		t.Fatalf("merge not stable: %v vs %v", first, second)
	}
	if !slices.IsSorted(first) {
		t.Fatalf("merge not sorted: %v", first)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nFILE_KEY=file-value\n\nOTHER = spaced \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	tab := New()
	if err := tab.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	got := tab.Merge(nil)
	if !slices.Contains(got, "FILE_KEY=file-value") {
		t.Fatalf("file value missing: %v", got)
	}
	if !slices.Contains(got, "OTHER=spaced") {
		t.Fatalf("whitespace not trimmed: %v", got)
	}
}

func TestLoadFileMissing(t *testing.T) {
	tab := New()
	if err := tab.LoadFile(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
