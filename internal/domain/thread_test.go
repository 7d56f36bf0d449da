package domain

import (
	"strings"
	"testing"
	"time"
)

func TestParseCollection(t *testing.T) {
	tests := []struct {
		in      string
		want    Collection
		wantErr bool
	}{
		{"direct", CollectionDirect, false},
		{"DM", CollectionDirect, false},
		{" groups ", CollectionGroup, false},
		{"group", CollectionGroup, false},
		{"channels", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCollection(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCollection(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCollection(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCollection_Other(t *testing.T) {
	if got := CollectionDirect.Other(); got != CollectionGroup {
		t.Errorf("direct.Other() = %q, want group", got)
	}
	if got := CollectionGroup.Other(); got != CollectionDirect {
		t.Errorf("group.Other() = %q, want direct", got)
	}
}

func TestThread_Touch(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	thread := &Thread{ID: "t1", LastActivityAt: base}

	thread.Touch("hello\nthere", base.Add(time.Minute))
	if thread.LastMessagePreview != "hello there" {
		t.Errorf("preview = %q, want %q", thread.LastMessagePreview, "hello there")
	}
	if !thread.LastActivityAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastActivityAt = %v, want %v", thread.LastActivityAt, base.Add(time.Minute))
	}

	// An older timestamp never moves activity backwards.
	thread.Touch("late", base)
	if !thread.LastActivityAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastActivityAt moved backwards to %v", thread.LastActivityAt)
	}
}

func TestPreview_Truncates(t *testing.T) {
	long := strings.Repeat("é", 150)
	got := Preview(long)
	if n := len([]rune(got)); n != PreviewLength {
		t.Errorf("Preview() has %d runes, want %d", n, PreviewLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Preview() = %q, want ... suffix", got)
	}
}

func TestThread_IsUnread(t *testing.T) {
	if (&Thread{UnreadCount: 0}).IsUnread() {
		t.Error("expected IsUnread() = false for zero count")
	}
	if !(&Thread{UnreadCount: 2}).IsUnread() {
		t.Error("expected IsUnread() = true for positive count")
	}
}

func TestThreadKey(t *testing.T) {
	direct := ThreadKey(CollectionDirect, "3")
	group := ThreadKey(CollectionGroup, "3")
	if direct == group {
		t.Fatalf("direct and group keys for the same raw id must differ, both %q", direct)
	}

	tests := []struct {
		key     string
		wantCol Collection
		wantRaw string
		wantOK  bool
	}{
		{direct, CollectionDirect, "3", true},
		{group, CollectionGroup, "3", true},
		{"group:a:b", CollectionGroup, "a:b", true},
		{"3", "", "", false},
		{"channel:3", "", "", false},
		{"direct:", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c, raw, ok := SplitThreadKey(tt.key)
			if c != tt.wantCol || raw != tt.wantRaw || ok != tt.wantOK {
				t.Errorf("SplitThreadKey(%q) = %q, %q, %v; want %q, %q, %v",
					tt.key, c, raw, ok, tt.wantCol, tt.wantRaw, tt.wantOK)
			}
		})
	}
}
