package merge

import "strings"

// ParseBranches turns raw `git branch -a` output into a deduplicated branch
// list, preserving first-seen order. The current-branch marker and
// remote-tracking prefixes are stripped, and `HEAD ->` pointer lines are
// dropped.
func ParseBranches(raw string) []string {
	seen := make(map[string]struct{})
	var branches []string

	for _, line := range strings.Split(raw, "\n") {
		name := strings.TrimSpace(line)
		name = strings.TrimSpace(strings.TrimPrefix(name, "*"))
		if name == "" || strings.Contains(name, "->") {
			continue
		}

		if rest, ok := strings.CutPrefix(name, "remotes/"); ok {
			// drop the remote name segment: remotes/origin/feature/x -> feature/x
			if _, branch, found := strings.Cut(rest, "/"); found {
				name = branch
			} else {
				continue
			}
		}

		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		branches = append(branches, name)
	}

	return branches
}

// HasConflicts scans `git status --porcelain` output for merge conflict
// markers. Only unmerged-both (UU), added-added (AA) and deleted-deleted
// (DD) entries count; any other dirt is not a conflict signal.
func HasConflicts(status string) bool {
	for _, line := range strings.Split(status, "\n") {
		if len(line) < 2 {
			continue
		}
		switch line[:2] {
		case "UU", "AA", "DD":
			return true
		}
	}
	return false
}
