package version

import "testing"

func TestInfoString(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v1.0.0"}, "v1.0.0"},
		{Info{Version: "v1.0.0", Commit: "0123456789abcdef"}, "v1.0.0 (0123456)"},
		{Info{Version: "dev", Commit: "abc"}, "dev (abc)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestGetReportsVersion(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Fatalf("Version = %q, want %q", info.Version, Version)
	}
	if info.Commit != CommitHash {
		t.Fatalf("Commit = %q, want %q", info.Commit, CommitHash)
	}
}
