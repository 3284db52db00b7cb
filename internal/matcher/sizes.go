package matcher

import "path"

// FileEntry is one payload file, as reported by the client or parsed from
// candidate metadata.
type FileEntry struct {
	Path string
	Size int64
}

// SizeMatchKind classifies the result of file-set reconciliation.
type SizeMatchKind string

const (
	SizeMatchExact    SizeMatchKind = "exact"
	SizeMatchSizeOnly SizeMatchKind = "size_only"
	SizeMatchNone     SizeMatchKind = "mismatch"
)

// SizeMatchResult is the outcome of MatchFilesBySize.
type SizeMatchResult struct {
	Kind         SizeMatchKind
	Matched      bool
	Confidence   float64
	MatchedFiles int
	TotalFiles   int
}

// MatchFilesBySize reconciles a candidate's file list against a searchee's.
// The searchee may contain extra files; every candidate file must find a
// distinct counterpart. Exact matching requires equal base name and size;
// size-only matching requires equal size alone, preferring name matches
// among equal-size siblings so they are not mis-assigned.
func MatchFilesBySize(searcheeFiles, candFiles []FileEntry) SizeMatchResult {
	result := SizeMatchResult{Kind: SizeMatchNone, TotalFiles: len(candFiles)}
	if len(candFiles) == 0 {
		return result
	}

	if matchExact(searcheeFiles, candFiles) {
		return SizeMatchResult{
			Kind:         SizeMatchExact,
			Matched:      true,
			Confidence:   1,
			MatchedFiles: len(candFiles),
			TotalFiles:   len(candFiles),
		}
	}

	matched := matchBySizeOnly(searcheeFiles, candFiles)
	result.MatchedFiles = matched
	result.Confidence = float64(matched) / float64(len(candFiles))
	if matched == len(candFiles) {
		result.Kind = SizeMatchSizeOnly
		result.Matched = true
	}
	return result
}

type nameSize struct {
	name string
	size int64
}

// matchExact checks that every candidate file has an equal-name, equal-size
// counterpart in the searchee, duplicates allowed, order irrelevant.
func matchExact(searcheeFiles, candFiles []FileEntry) bool {
	pool := make(map[nameSize]int, len(searcheeFiles))
	for _, f := range searcheeFiles {
		pool[nameSize{path.Base(f.Path), f.Size}]++
	}
	for _, f := range candFiles {
		key := nameSize{path.Base(f.Path), f.Size}
		if pool[key] == 0 {
			return false
		}
		pool[key]--
	}
	return true
}

// matchBySizeOnly assigns each candidate file to a distinct same-size
// searchee file and returns how many candidates were placed. When several
// unconsumed searchee files share a size, the one whose base name also
// matches is consumed first.
func matchBySizeOnly(searcheeFiles, candFiles []FileEntry) int {
	bySize := make(map[int64][]int, len(searcheeFiles))
	for i, f := range searcheeFiles {
		bySize[f.Size] = append(bySize[f.Size], i)
	}
	consumed := make(map[int]bool, len(candFiles))

	matched := 0
	for _, cf := range candFiles {
		indices := bySize[cf.Size]
		chosen := -1
		for _, i := range indices {
			if consumed[i] {
				continue
			}
			if chosen < 0 {
				chosen = i
			}
			if path.Base(searcheeFiles[i].Path) == path.Base(cf.Path) {
				chosen = i
				break
			}
		}
		if chosen < 0 {
			continue
		}
		consumed[chosen] = true
		matched++
	}
	return matched
}
