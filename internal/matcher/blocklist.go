package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BlockRuleKind discriminates blocklist rule types.
type BlockRuleKind string

const (
	BlockRuleName        BlockRuleKind = "name"
	BlockRuleNameRegex   BlockRuleKind = "nameRegex"
	BlockRuleFolder      BlockRuleKind = "folder"
	BlockRuleFolderRegex BlockRuleKind = "folderRegex"
	BlockRuleCategory    BlockRuleKind = "category"
	BlockRuleTag         BlockRuleKind = "tag"
	BlockRuleHash        BlockRuleKind = "infoHash"
	BlockRuleSizeBelow   BlockRuleKind = "sizeBelow"
	BlockRuleSizeAbove   BlockRuleKind = "sizeAbove"
	// BlockRuleLegacy is an untyped rule checked against name, hash and
	// folder together, kept for configurations migrated from older releases.
	BlockRuleLegacy BlockRuleKind = "legacy"
)

// BlockRule is one blocklist entry.
type BlockRule struct {
	Kind  BlockRuleKind `json:"kind"`
	Value string        `json:"value"`
}

// BlockCheckItem carries the fields blocklist rules can inspect, filled from
// either a searchee or a parsed candidate.
type BlockCheckItem struct {
	Name     string
	Folder   string
	Category string
	Tags     []string
	InfoHash string
	Size     int64
}

// FindBlockedString evaluates rules in order and returns a description of
// the first rule that matches, or ok=false when nothing blocks the item.
func FindBlockedString(item BlockCheckItem, rules []BlockRule) (string, bool) {
	for _, rule := range rules {
		if ruleMatches(item, rule) {
			return fmt.Sprintf("%s:%s", rule.Kind, rule.Value), true
		}
	}
	return "", false
}

func ruleMatches(item BlockCheckItem, rule BlockRule) bool {
	switch rule.Kind {
	case BlockRuleName:
		return containsFold(item.Name, rule.Value)
	case BlockRuleNameRegex:
		return regexMatches(rule.Value, item.Name)
	case BlockRuleFolder:
		return containsFold(item.Folder, rule.Value)
	case BlockRuleFolderRegex:
		return regexMatches(rule.Value, item.Folder)
	case BlockRuleCategory:
		return strings.EqualFold(item.Category, rule.Value)
	case BlockRuleTag:
		for _, tag := range item.Tags {
			if strings.EqualFold(tag, rule.Value) {
				return true
			}
		}
		return false
	case BlockRuleHash:
		return strings.EqualFold(item.InfoHash, rule.Value)
	case BlockRuleSizeBelow:
		limit, err := strconv.ParseInt(rule.Value, 10, 64)
		return err == nil && item.Size > 0 && item.Size < limit
	case BlockRuleSizeAbove:
		limit, err := strconv.ParseInt(rule.Value, 10, 64)
		return err == nil && item.Size > limit
	case BlockRuleLegacy:
		return containsFold(item.Name, rule.Value) ||
			strings.EqualFold(item.InfoHash, rule.Value) ||
			containsFold(item.Folder, rule.Value)
	default:
		return false
	}
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func regexMatches(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
