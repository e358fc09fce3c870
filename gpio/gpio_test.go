package gpio

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeSysfs(t *testing.T, number string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "gpio"+number)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"value", "direction"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("0\n"), 0666); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRail(t *testing.T) {
	for _, tc := range []struct {
		name      string
		activeLow bool
		on, off   string
	}{
		{"active high", false, "1", "0"},
		{"active low", true, "0", "1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			root := fakeSysfs(t, "48")
			line, err := Export(root, 48)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			rail, err := NewRail(line, tc.activeLow)
			if err != nil {
				t.Fatalf("NewRail: %v", err)
			}
			if got := read(t, filepath.Join(root, "gpio48", "direction")); got != "out" {
				t.Fatalf("direction = %q", got)
			}
			if err := rail.Enable(); err != nil {
				t.Fatalf("Enable: %v", err)
			}
			if got := read(t, filepath.Join(root, "gpio48", "value")); got != tc.on {
				t.Fatalf("enabled value = %q, want %q", got, tc.on)
			}
			if on, err := rail.Enabled(); err != nil || !on {
				t.Fatalf("Enabled = %v, %v", on, err)
			}
			if err := rail.Disable(); err != nil {
				t.Fatalf("Disable: %v", err)
			}
			if got := read(t, filepath.Join(root, "gpio48", "value")); got != tc.off {
				t.Fatalf("disabled value = %q, want %q", got, tc.off)
			}
		})
	}
}

func TestExportWritesExportFile(t *testing.T) {
	root := t.TempDir()
	line, err := Export(root, 7)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if got := read(t, filepath.Join(root, "export")); got != "7" {
		t.Fatalf("export = %q", got)
	}
	if line.Number() != 7 {
		t.Fatalf("number = %d", line.Number())
	}
	if err := line.Unexport(); err != nil {
		t.Fatalf("Unexport: %v", err)
	}
	if got := read(t, filepath.Join(root, "unexport")); got != "7" {
		t.Fatalf("unexport = %q", got)
	}
}

func TestExportMissingRoot(t *testing.T) {
	if _, err := Export(filepath.Join(t.TempDir(), "missing"), 3); err == nil {
		t.Fatal("expected an error")
	}
}
