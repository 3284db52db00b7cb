// Package matcher implements the release-compatibility heuristics used to
// decide whether a candidate release can seed from locally held data.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSizeTolerance is the relative total-size difference allowed before
// a candidate is rejected without fetching its metadata.
const DefaultSizeTolerance = 0.02

var (
	resolutionRe = regexp.MustCompile(`(?i)\b(4320p|2160p|1080p|720p|576p|480p)\b`)
	fourKRe      = regexp.MustCompile(`(?i)\b(4k|uhd)\b`)
	properRe     = regexp.MustCompile(`(?i)\b(proper|repack|rerip)\b`)
	groupRe      = regexp.MustCompile(`-\s*([A-Za-z0-9][A-Za-z0-9._]*)\s*(?:\.\w{3})?$`)
	animeGroupRe = regexp.MustCompile(`^\[([^\]\[]+)\]`)

	// Tokens that trail a dash but are encoder/codec noise or the severed
	// tail of a hyphenated source tag (WEB-DL, Blu-Ray), not a group tag.
	groupNoiseRe = regexp.MustCompile(`(?i)^(x26[45]|h26[45]|hevc|avc|xvid|divx|aac\d?|ac3|dd[p+]?\d?(\.\d)?|dts(hd)?|atmos|10bit|8bit|hdr\d*|dv|sdr|web|webdl|webrip|bluray|remux|hybrid|dl|ray|rip)$`)

	sourceRe = regexp.MustCompile(`(?i)\b(web[-. ]?dl|webrip|web|blu[-. ]?ray|bd(?:rip)?|br(?:rip)?|remux|hdtv|dvd(?:rip)?|sdtv|cam|hdcam|telesync)\b`)

	seasonPackRe    = regexp.MustCompile(`(?i)\bS(\d{1,2})\b(?:[^E]|$)`)
	singleEpisodeRe = regexp.MustCompile(`(?i)\bS\d{1,2}[. ]?E\d{1,3}\b|\b\d{1,2}x\d{2}\b`)
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".wmv": true,
	".mov": true, ".ts": true, ".m2ts": true, ".m4v": true,
}

// ExtractResolution returns the canonical resolution token from a release
// name, or "" if none is present. 4K/UHD tags normalize to 2160p.
func ExtractResolution(name string) string {
	if m := resolutionRe.FindString(name); m != "" {
		return strings.ToLower(m)
	}
	if fourKRe.MatchString(name) {
		return "2160p"
	}
	return ""
}

// ExtractReleaseGroup returns the release group tag from a name, or "" when
// the trailing token is codec/encoder noise rather than a group. Falls back
// to the anime [Group] bracket-prefix convention.
func ExtractReleaseGroup(name string) string {
	if m := groupRe.FindStringSubmatch(name); m != nil {
		group := strings.TrimSuffix(m[1], ".")
		// A trailing file extension can be captured as part of the tag.
		if dot := strings.LastIndex(group, "."); dot > 0 && videoExtensions["."+strings.ToLower(group[dot+1:])] {
			group = group[:dot]
		}
		if !groupNoiseRe.MatchString(group) {
			return group
		}
	}
	if m := animeGroupRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// ExtractSource returns the canonical source tag (web, webrip, bluray,
// remux, hdtv, dvd, ...) from a release name, or "".
func ExtractSource(name string) string {
	m := sourceRe.FindString(name)
	if m == "" {
		return ""
	}
	normalized := strings.ToLower(strings.NewReplacer("-", "", ".", "", " ", "").Replace(m))
	switch normalized {
	case "webdl", "web":
		return "web"
	case "webrip":
		return "webrip"
	case "bluray", "bd", "bdrip", "br", "brrip":
		return "bluray"
	case "remux":
		return "remux"
	case "hdtv", "sdtv":
		return "hdtv"
	case "dvd", "dvdrip":
		return "dvd"
	case "cam", "hdcam", "telesync":
		return "cam"
	default:
		return normalized
	}
}

// HasProperRepack reports whether the name carries a PROPER/REPACK/RERIP tag.
func HasProperRepack(name string) bool {
	return properRe.MatchString(name)
}

// PreFilterResult is the outcome of a cheap name/size comparison performed
// before any network fetch of the candidate's metadata.
type PreFilterResult struct {
	Pass   bool
	Reason string
}

func failf(format string, args ...interface{}) PreFilterResult {
	return PreFilterResult{Reason: fmt.Sprintf(format, args...)}
}

// PreFilter rejects candidates whose names can never match the source,
// short-circuiting on the first incompatibility: resolution, release group,
// source tag, PROPER/REPACK state, then a fuzzy total-size check. Sizes
// below zero are treated as unknown and skip the size check.
func PreFilter(sourceName string, sourceSize int64, candName string, candSize int64, tolerance float64) PreFilterResult {
	if tolerance <= 0 {
		tolerance = DefaultSizeTolerance
	}

	srcRes, candRes := ExtractResolution(sourceName), ExtractResolution(candName)
	if srcRes != "" && candRes != "" && srcRes != candRes {
		return failf("resolution mismatch: %s vs %s", srcRes, candRes)
	}

	srcGroup, candGroup := ExtractReleaseGroup(sourceName), ExtractReleaseGroup(candName)
	if !groupsCompatible(srcGroup, candGroup) {
		return failf("release group mismatch: %s vs %s", srcGroup, candGroup)
	}

	srcSource, candSource := ExtractSource(sourceName), ExtractSource(candName)
	if srcSource != "" && candSource != "" && srcSource != candSource {
		return failf("source mismatch: %s vs %s", srcSource, candSource)
	}

	if HasProperRepack(sourceName) != HasProperRepack(candName) {
		return failf("proper/repack state mismatch")
	}

	if sourceSize >= 0 && candSize >= 0 {
		if sourceSize == 0 {
			if candSize != 0 {
				return failf("size mismatch: source size is zero, candidate is %d bytes", candSize)
			}
		} else {
			diff := sourceSize - candSize
			if diff < 0 {
				diff = -diff
			}
			if float64(diff)/float64(sourceSize) > tolerance {
				return failf("size outside %.0f%% tolerance: %d vs %d", tolerance*100, sourceSize, candSize)
			}
		}
	}

	return PreFilterResult{Pass: true}
}

// groupsCompatible treats a missing group on either side as compatible, and
// accepts prefix-substring overlap (some trackers truncate or extend tags).
func groupsCompatible(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.HasPrefix(la, lb) || strings.HasPrefix(lb, la)
}

// IsSeasonPack reports whether a release name looks like a full-season pack
// (a season tag with no episode component).
func IsSeasonPack(name string) bool {
	return seasonPackRe.MatchString(name) && !singleEpisodeRe.MatchString(name)
}

// IsSingleEpisode reports whether a candidate is a single episode, either
// from its title pattern or from having exactly one playable video file.
func IsSingleEpisode(name string, files []FileEntry) bool {
	if singleEpisodeRe.MatchString(name) {
		return true
	}
	videos := 0
	for _, f := range files {
		if isVideoFile(f.Path) {
			videos++
		}
	}
	return len(files) > 0 && videos == 1
}

// RejectSeasonEpisodeMismatch is the policy guard: a season-pack searchee
// must not accept a single-episode candidate unless single episodes are
// explicitly allowed.
func RejectSeasonEpisodeMismatch(searcheeName, candName string, candFiles []FileEntry, allowSingleEpisodes bool) bool {
	if allowSingleEpisodes {
		return false
	}
	return IsSeasonPack(searcheeName) && IsSingleEpisode(candName, candFiles)
}

func isVideoFile(path string) bool {
	dot := strings.LastIndex(path, ".")
	if dot < 0 {
		return false
	}
	return videoExtensions[strings.ToLower(path[dot:])]
}
