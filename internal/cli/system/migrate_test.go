package system

import (
	"bytes"
	"strings"
	"testing"
)

func TestMigrateCmd(t *testing.T) {
	ctx, _ := setupTestInitDB(t)
	out := ctx.Out.(*bytes.Buffer)

	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "Successfully applied") {
		t.Errorf("expected migrations on a fresh database:\n%s", out.String())
	}

	out.Reset()
	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "Database is up to date") {
		t.Errorf("second run should be a no-op:\n%s", out.String())
	}
}
