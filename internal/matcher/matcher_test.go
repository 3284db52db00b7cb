package matcher

import (
	"strings"
	"testing"
)

func TestExtractResolution(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Some.Movie.2024.1080p.WEB-DL.x264-GROUP", "1080p"},
		{"Some.Movie.2024.2160p.BluRay.x265-GROUP", "2160p"},
		{"Some.Movie.2024.4K.HDR.BluRay-GROUP", "2160p"},
		{"Some.Movie.2024.DVDRip.XviD-GROUP", ""},
		{"Show.S01.720p.HDTV.x264-TEAM", "720p"},
	}
	for _, tc := range cases {
		if got := ExtractResolution(tc.name); got != tc.want {
			t.Errorf("ExtractResolution(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractReleaseGroup(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Some.Movie.2024.1080p.WEB-DL.x264-GROUP", "GROUP"},
		{"Some.Movie.2024.1080p.WEB-DL-x264", ""},      // codec noise, not a group
		{"Some.Movie.2024.1080p.BluRay.x265-HEVC", ""}, // codec noise
		{"Some.Movie.2024.1080p.WEB-DL", ""},           // severed source tag, not a group
		{"Some.Movie.2024.1080p.Blu-Ray", ""},          // severed source tag
		{"[SubsPlease] Some Anime - 01 (1080p)", "SubsPlease"},
		{"Some.Movie.2024.1080p", ""},
	}
	for _, tc := range cases {
		if got := ExtractReleaseGroup(tc.name); got != tc.want {
			t.Errorf("ExtractReleaseGroup(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractSource(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Movie.2024.1080p.WEB-DL.x264-GRP", "web"},
		{"Movie.2024.1080p.WEBDL.x264-GRP", "web"},
		{"Movie.2024.1080p.WEBRip.x264-GRP", "webrip"},
		{"Movie.2024.1080p.BluRay.x264-GRP", "bluray"},
		{"Movie.2024.1080p.Blu-Ray.x264-GRP", "bluray"},
		{"Movie.2024.BDRip.x264-GRP", "bluray"},
		{"Show.S01E01.HDTV.x264-GRP", "hdtv"},
		{"Movie.2024.1080p.x264-GRP", ""},
	}
	for _, tc := range cases {
		if got := ExtractSource(tc.name); got != tc.want {
			t.Errorf("ExtractSource(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPreFilter_Reflexive(t *testing.T) {
	name := "Some.Movie.2024.1080p.WEB-DL.x264-GROUP"
	res := PreFilter(name, 1_000_000, name, 1_000_000, 0)
	if !res.Pass {
		t.Errorf("identical name and size should pass, got %q", res.Reason)
	}
}

func TestPreFilter_SizeTolerance(t *testing.T) {
	name := "Some.Movie.2024.1080p.WEB-DL.x264-GROUP"

	// Just inside 2%
	if res := PreFilter(name, 100_000, name, 101_900, 0); !res.Pass {
		t.Errorf("1.9%% difference should pass, got %q", res.Reason)
	}
	// Just outside 2%
	if res := PreFilter(name, 100_000, name, 102_100, 0); res.Pass {
		t.Error("2.1% difference should fail")
	}
}

func TestPreFilter_ZeroSourceSize(t *testing.T) {
	name := "Some.Movie.2024.1080p.WEB-DL.x264-GROUP"
	res := PreFilter(name, 0, name, 5000, 0)
	if res.Pass {
		t.Error("zero source size with nonzero candidate should fail")
	}
	if strings.Contains(res.Reason, "Inf") || strings.Contains(res.Reason, "NaN") {
		t.Errorf("reason leaked a division artifact: %q", res.Reason)
	}
}

func TestPreFilter_UnknownSizeSkipsCheck(t *testing.T) {
	name := "Some.Movie.2024.1080p.WEB-DL.x264-GROUP"
	if res := PreFilter(name, -1, name, 5000, 0); !res.Pass {
		t.Errorf("unknown source size should skip the size check, got %q", res.Reason)
	}
}

func TestPreFilter_ShortCircuits(t *testing.T) {
	src := "Some.Movie.2024.1080p.WEB-DL.x264-GROUP"

	cases := []struct {
		cand   string
		reason string
	}{
		{"Some.Movie.2024.2160p.WEB-DL.x264-GROUP", "resolution"},
		{"Some.Movie.2024.1080p.WEB-DL.x264-OTHER", "release group"},
		{"Some.Movie.2024.1080p.BluRay.x264-GROUP", "source"},
		{"Some.Movie.2024.PROPER.1080p.WEB-DL.x264-GROUP", "proper"},
	}
	for _, tc := range cases {
		res := PreFilter(src, 1000, tc.cand, 1000, 0)
		if res.Pass {
			t.Errorf("PreFilter(%q) should fail", tc.cand)
			continue
		}
		if !strings.Contains(res.Reason, tc.reason) {
			t.Errorf("PreFilter(%q) reason %q, expected to mention %q", tc.cand, res.Reason, tc.reason)
		}
	}
}

func TestPreFilter_GroupCompatibility(t *testing.T) {
	// Missing group on either side is compatible.
	res := PreFilter("Some.Movie.2024.1080p.WEB-DL.x264-GROUP", 1000, "Some.Movie.2024.1080p.WEB-DL", 1000, 0)
	if !res.Pass {
		t.Errorf("missing candidate group should be compatible, got %q", res.Reason)
	}

	// Prefix overlap is compatible.
	res = PreFilter("Some.Movie.2024.1080p.WEB-DL.x264-GROUP", 1000, "Some.Movie.2024.1080p.WEB-DL.x264-GROUPHD", 1000, 0)
	if !res.Pass {
		t.Errorf("prefix-overlapping groups should be compatible, got %q", res.Reason)
	}
}

func TestSeasonEpisodeGuard(t *testing.T) {
	seasonPack := "Show.S03.1080p.WEB-DL.x264-GROUP"
	episode := "Show.S03E05.1080p.WEB-DL.x264-GROUP"

	if !RejectSeasonEpisodeMismatch(seasonPack, episode, nil, false) {
		t.Error("season pack searchee should reject single-episode candidate")
	}
	if RejectSeasonEpisodeMismatch(seasonPack, episode, nil, true) {
		t.Error("opt-in should allow single-episode candidates")
	}
	if RejectSeasonEpisodeMismatch(episode, episode, nil, false) {
		t.Error("episode searchee should not trigger the guard")
	}

	// Single-episode detection from the file list: one video file.
	files := []FileEntry{
		{Path: "Show/ep.mkv", Size: 100},
		{Path: "Show/ep.nfo", Size: 1},
	}
	if !RejectSeasonEpisodeMismatch(seasonPack, "Show.Bundle.1080p", files, false) {
		t.Error("one playable video file should classify as single episode")
	}
}
