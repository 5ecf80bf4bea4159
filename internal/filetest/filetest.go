// Package filetest runs golden-file checks for calla script tests: a
// script's captured stdout is compared against a .want file and its stderr
// against a .err file, both sitting next to the script. A missing golden
// file means the corresponding stream must be empty, so happy-path scripts
// carry only a .want and error scripts only a .err.
package filetest

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/diff"
)

var updateGolden = flag.Bool("test.update-golden", false, "If set, replace the golden .want and .err files with the actual outputs.")

// Scripts returns the sorted names of the scripts in dir with the given
// extension (the golden .want and .err files are skipped).
func Scripts(t *testing.T, dir, ext string) []string {
	t.Helper()

	dents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	names := make([]string, 0, len(dents))
	for _, dent := range dents {
		if !dent.Type().IsRegular() || filepath.Ext(dent.Name()) != ext {
			continue
		}
		names = append(names, dent.Name())
	}
	return names
}

// CompareOutputs checks the stdout and stderr captured from running the
// script against dir/<script>.want and dir/<script>.err. When the update
// flag is set it rewrites the golden files instead, removing the ones whose
// stream came out empty.
func CompareOutputs(t *testing.T, dir, script, stdout, stderr string) {
	t.Helper()
	compare(t, "stdout", filepath.Join(dir, script+".want"), stdout)
	compare(t, "stderr", filepath.Join(dir, script+".err"), stderr)
}

func compare(t *testing.T, label, goldFile, got string) {
	t.Helper()

	if *updateGolden {
		if got == "" {
			if err := os.Remove(goldFile); err != nil && !os.IsNotExist(err) {
				t.Fatal(err)
			}
			return
		}
		if err := os.WriteFile(goldFile, []byte(got), 0600); err != nil {
			t.Fatal(err)
		}
		return
	}

	wantb, err := os.ReadFile(goldFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	want := string(wantb)
	if testing.Verbose() && got != "" {
		t.Logf("got %s:\n%s\n", label, got)
	}
	if patch := diff.Diff(want, got); patch != "" {
		t.Errorf("diff %s:\n%s\n", label, patch)
	}
}
