package g2p

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDictConverterMarksFinalVowel(t *testing.T) {
	c := NewDictConverter(nil)
	got, err := c.Convert(context.Background(), "Hello, world!")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := []string{"HH", "EH", "L", "OW_FINAL", "SIL", "W", "ER_FINAL", "L", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDictConverterFallsBackToLetters(t *testing.T) {
	c := NewDictConverter(map[string][]string{"Zed": {"Z", "EH", "D"}})
	got, err := c.Convert(context.Background(), "zed shoe")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got[0] != "Z" || got[1] != "EH_FINAL" {
		t.Fatalf("expected dictionary entry first, got %v", got)
	}
	if got[3] != "SIL" || got[4] != "SH" {
		t.Fatalf("expected SH digraph, got %v", got)
	}
}

func TestStripFinal(t *testing.T) {
	ph, final := StripFinal("ow_final")
	if ph != "OW" || !final {
		t.Fatalf("unexpected %q %v", ph, final)
	}
	ph, final = StripFinal("EH")
	if ph != "EH" || final {
		t.Fatalf("unexpected %q %v", ph, final)
	}
}

func TestExecConverterRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecConverter("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	if err := os.WriteFile(path, []byte("Phonex: [f, ow, n, eh, k, s]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dict, err := LoadDictionary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := NewDictConverter(dict).Convert(context.Background(), "phonex")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"F", "OW", "N", "EH_FINAL", "K", "S"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("word: [QQ]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDictionary(bad); err == nil {
		t.Fatal("expected unknown phoneme error")
	}
}
