package maincmd_test

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/mna/loxvm/internal/filetest"
	"github.com/mna/loxvm/internal/maincmd"
	"github.com/mna/mainer"
)

var testUpdateRunTests = flag.Bool("test.update-run-tests", false, "If set, replace expected run test results with actual results.")

// TestRun exercises the "run" subcommand end-to-end against the golden
// scripts in testdata/in, the same way the reference tool's own
// maincmd-level tests are organized: one golden stdout/stderr pair per
// source file, diffed rather than hand-asserted.
func TestRun(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".lox") {
		t.Run(fi.Name(), func(t *testing.T) {
			var buf, ebuf bytes.Buffer
			stdio := mainer.Stdio{Stdout: &buf, Stderr: &ebuf}

			c := &maincmd.Cmd{}
			// error is ignored, we just want it reflected in ebuf
			_ = c.Run(context.Background(), stdio, []string{filepath.Join(srcDir, fi.Name())})

			filetest.DiffOutput(t, fi, buf.String(), resultDir, testUpdateRunTests)
			filetest.DiffErrors(t, fi, ebuf.String(), resultDir, testUpdateRunTests)
		})
	}
}
