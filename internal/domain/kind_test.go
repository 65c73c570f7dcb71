package domain

import "testing"

func TestParseMediaKind(t *testing.T) {
	tests := []struct {
		in      string
		want    MediaKind
		wantErr bool
	}{
		{"audio", MediaKindAudio, false},
		{"video", MediaKindVideo, false},
		{"", "", true},
		{"Audio", "", true},
		{"screen", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMediaKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMediaKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseMediaKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMetadataOwns(t *testing.T) {
	m := Metadata{UserID: "alice", RoomID: "room-1"}
	if !m.Owns("alice", "room-1") {
		t.Error("exact owner rejected")
	}
	if m.Owns("bob", "room-1") || m.Owns("alice", "room-2") {
		t.Error("non-owner accepted")
	}
}
