package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAREER_MINIMAX_TEST_SECRET", " from-env ")
	t.Setenv("CAREER_MINIMAX_TEST_UNSET", "")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{Name: "key", File: keyFile, Value: "inline", Env: "CAREER_MINIMAX_TEST_SECRET"}, want: "from-file"},
		{name: "value beats env", src: Source{Value: " inline ", Env: "CAREER_MINIMAX_TEST_SECRET"}, want: "inline"},
		{name: "env", src: Source{Env: "CAREER_MINIMAX_TEST_SECRET"}, want: "from-env"},
		{name: "missing file", src: Source{Name: "key", File: filepath.Join(dir, "nope")}, wantErr: "reading key from file"},
		{name: "empty file", src: Source{Name: "key", File: emptyFile}, wantErr: "is empty"},
		{name: "empty env", src: Source{Name: "key", Env: "CAREER_MINIMAX_TEST_UNSET"}, wantErr: "CAREER_MINIMAX_TEST_UNSET is empty"},
		{name: "nothing", src: Source{}, wantErr: "secret is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
