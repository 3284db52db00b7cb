package matcher

import "testing"

func TestMatchFilesBySize_ExactSubset(t *testing.T) {
	searchee := []FileEntry{
		{Path: "Release/a.mkv", Size: 1000},
		{Path: "Release/b.mkv", Size: 2000},
		{Path: "Release/c.nfo", Size: 500},
	}
	cand := []FileEntry{
		{Path: "Other.Name/a.mkv", Size: 1000},
		{Path: "Other.Name/b.mkv", Size: 2000},
	}

	res := MatchFilesBySize(searchee, cand)
	if res.Kind != SizeMatchExact || !res.Matched {
		t.Fatalf("expected exact match, got %+v", res)
	}
	if res.Confidence != 1 {
		t.Errorf("exact match should have full confidence, got %f", res.Confidence)
	}
}

func TestMatchFilesBySize_SizeOnly(t *testing.T) {
	searchee := []FileEntry{{Path: "a.mkv", Size: 1000}}
	cand := []FileEntry{{Path: "b.mkv", Size: 1000}}

	res := MatchFilesBySize(searchee, cand)
	if res.Kind != SizeMatchSizeOnly || !res.Matched {
		t.Fatalf("expected size-only match, got %+v", res)
	}
}

func TestMatchFilesBySize_NamePreferenceAmongSameSizeSiblings(t *testing.T) {
	// Two searchee files share a size; the candidate that also matches by
	// name must consume its namesake, leaving the other for the second
	// candidate file.
	searchee := []FileEntry{
		{Path: "Show/ep1.mkv", Size: 1000},
		{Path: "Show/ep2.mkv", Size: 1000},
	}
	cand := []FileEntry{
		{Path: "Pack/ep2.mkv", Size: 1000},
		{Path: "Pack/ep1.mkv", Size: 1000},
	}

	res := MatchFilesBySize(searchee, cand)
	if !res.Matched || res.MatchedFiles != 2 {
		t.Fatalf("both same-size files should be assigned, got %+v", res)
	}
}

func TestMatchFilesBySize_PartialCoverage(t *testing.T) {
	searchee := []FileEntry{
		{Path: "a.mkv", Size: 1000},
		{Path: "b.mkv", Size: 2000},
	}
	cand := []FileEntry{
		{Path: "a.mkv", Size: 1000},
		{Path: "b.mkv", Size: 2000},
		{Path: "c.mkv", Size: 3000}, // no counterpart
	}

	res := MatchFilesBySize(searchee, cand)
	if res.Matched {
		t.Fatal("incomplete coverage must not match")
	}
	if res.Kind != SizeMatchNone {
		t.Errorf("expected mismatch kind, got %s", res.Kind)
	}
	if res.MatchedFiles != 2 || res.TotalFiles != 3 {
		t.Errorf("expected 2/3 matched, got %d/%d", res.MatchedFiles, res.TotalFiles)
	}
	want := 2.0 / 3.0
	if res.Confidence < want-0.001 || res.Confidence > want+0.001 {
		t.Errorf("expected confidence %.3f, got %.3f", want, res.Confidence)
	}
}

func TestMatchFilesBySize_DistinctConsumption(t *testing.T) {
	// One searchee file cannot satisfy two candidate files of the same size.
	searchee := []FileEntry{{Path: "a.mkv", Size: 1000}}
	cand := []FileEntry{
		{Path: "x.mkv", Size: 1000},
		{Path: "y.mkv", Size: 1000},
	}

	res := MatchFilesBySize(searchee, cand)
	if res.Matched {
		t.Fatal("duplicate sizes must consume distinct searchee files")
	}
	if res.MatchedFiles != 1 {
		t.Errorf("expected 1 matched, got %d", res.MatchedFiles)
	}
}

func TestMatchFilesBySize_Empty(t *testing.T) {
	nonEmpty := []FileEntry{{Path: "a.mkv", Size: 1000}}

	if res := MatchFilesBySize(nil, nonEmpty); res.Matched {
		t.Error("empty searchee should not match")
	}
	if res := MatchFilesBySize(nonEmpty, nil); res.Matched {
		t.Error("empty candidate should never match")
	}
	if res := MatchFilesBySize(nil, nil); res.Matched {
		t.Error("both empty should not match")
	}
}

func TestMatchFilesBySize_DuplicatesAllowedInExact(t *testing.T) {
	searchee := []FileEntry{
		{Path: "a/sample.mkv", Size: 700},
		{Path: "b/sample.mkv", Size: 700},
	}
	cand := []FileEntry{
		{Path: "x/sample.mkv", Size: 700},
		{Path: "y/sample.mkv", Size: 700},
	}

	res := MatchFilesBySize(searchee, cand)
	if res.Kind != SizeMatchExact {
		t.Errorf("duplicate name+size pairs should still match exactly, got %+v", res)
	}
}

func TestFindBlockedString(t *testing.T) {
	item := BlockCheckItem{
		Name:     "Some.Release.1080p.WEB-DL.x264-GROUP",
		Folder:   "/downloads/movies",
		Category: "movies",
		Tags:     []string{"keep", "archive"},
		InfoHash: "abcdef0123456789abcdef0123456789abcdef01",
		Size:     5_000_000,
	}

	cases := []struct {
		rule    BlockRule
		blocked bool
	}{
		{BlockRule{Kind: BlockRuleName, Value: "some.release"}, true},
		{BlockRule{Kind: BlockRuleName, Value: "other"}, false},
		{BlockRule{Kind: BlockRuleNameRegex, Value: `(?i)\.web-dl\.`}, true},
		{BlockRule{Kind: BlockRuleFolder, Value: "movies"}, true},
		{BlockRule{Kind: BlockRuleFolderRegex, Value: `^/downloads/`}, true},
		{BlockRule{Kind: BlockRuleCategory, Value: "Movies"}, true},
		{BlockRule{Kind: BlockRuleTag, Value: "archive"}, true},
		{BlockRule{Kind: BlockRuleTag, Value: "missing"}, false},
		{BlockRule{Kind: BlockRuleHash, Value: "ABCDEF0123456789ABCDEF0123456789ABCDEF01"}, true},
		{BlockRule{Kind: BlockRuleSizeBelow, Value: "10000000"}, true},
		{BlockRule{Kind: BlockRuleSizeAbove, Value: "10000000"}, false},
		{BlockRule{Kind: BlockRuleSizeAbove, Value: "1000000"}, true},
		{BlockRule{Kind: BlockRuleLegacy, Value: "some.release"}, true},
		{BlockRule{Kind: BlockRuleNameRegex, Value: "("}, false}, // invalid pattern never blocks
	}

	for _, tc := range cases {
		_, blocked := FindBlockedString(item, []BlockRule{tc.rule})
		if blocked != tc.blocked {
			t.Errorf("rule %s:%q blocked=%v, want %v", tc.rule.Kind, tc.rule.Value, blocked, tc.blocked)
		}
	}
}

func TestFindBlockedString_FirstMatchWins(t *testing.T) {
	item := BlockCheckItem{Name: "Some.Release"}
	rules := []BlockRule{
		{Kind: BlockRuleName, Value: "nomatch"},
		{Kind: BlockRuleName, Value: "release"},
		{Kind: BlockRuleName, Value: "some"},
	}
	desc, blocked := FindBlockedString(item, rules)
	if !blocked || desc != "name:release" {
		t.Errorf("expected first matching rule, got %q blocked=%v", desc, blocked)
	}
}
