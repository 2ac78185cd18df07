package hls

import "testing"

const samplePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:4
#EXTINF:2.002,
segment_A_004.ts
#EXTINF:2.002,
segment_A_005.ts
#EXTINF:2.002,
segment_A_006.ts
`

func TestSegmentURIs_MatchesSlot(t *testing.T) {
	uris := SegmentURIs(samplePlaylist, "A")
	if len(uris) != 3 {
		t.Fatalf("expected 3 segments, got %d: %v", len(uris), uris)
	}
	if uris[0] != "segment_A_004.ts" {
		t.Errorf("expected first segment segment_A_004.ts, got %s", uris[0])
	}
}

func TestSegmentURIs_IgnoresOtherSlot(t *testing.T) {
	uris := SegmentURIs(samplePlaylist, "B")
	if len(uris) != 0 {
		t.Fatalf("expected 0 segments for slot B, got %d", len(uris))
	}
}

func TestSegmentURIs_IgnoresComments(t *testing.T) {
	playlist := "#EXTM3U\n#EXT-X-ENDLIST\n"
	uris := SegmentURIs(playlist, "A")
	if len(uris) != 0 {
		t.Fatalf("expected 0 segments, got %d", len(uris))
	}
}

func TestIsNonEmptyPlaylist(t *testing.T) {
	if IsNonEmptyPlaylist("#EXTM3U\n\n") {
		t.Error("expected empty playlist to report false")
	}
	if !IsNonEmptyPlaylist(samplePlaylist) {
		t.Error("expected sample playlist to report true")
	}
}
