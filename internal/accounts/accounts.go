// Package accounts reads the account-list file: one handle per line, with
// comments, @-prefixes and profile URLs tolerated.
package accounts

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrNoAccounts means the list yielded no valid handles; this is a fatal
// startup condition.
var ErrNoAccounts = errors.New("account list contains no valid handles")

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Load parses the file at path. Each non-empty, non-# line is a bare
// handle, an @handle, or a URL whose last path segment is the handle.
// Invalid lines are logged and skipped; case-insensitive duplicates are
// collapsed keeping first-seen order.
func Load(path string, logger *zap.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open account list: %w", err)
	}
	defer f.Close()

	var handles []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		handle, ok := normalizeEntry(line)
		if !ok {
			logger.Warn("skipping invalid account entry",
				zap.Int("line", lineNo), zap.String("entry", line))
			continue
		}

		key := strings.ToLower(handle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		handles = append(handles, handle)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read account list: %w", err)
	}

	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAccounts, path)
	}
	return handles, nil
}

// normalizeEntry reduces one list entry to a bare validated handle.
func normalizeEntry(entry string) (string, bool) {
	candidate := entry

	if strings.Contains(entry, "://") || strings.HasPrefix(entry, "www.") {
		u, err := url.Parse(entry)
		if err != nil {
			return "", false
		}
		path := strings.Trim(u.Path, "/")
		if path == "" {
			// www.-style entries parse with everything in Path's host
			// position; re-split on the raw string.
			parts := strings.Split(strings.Trim(entry, "/"), "/")
			path = parts[len(parts)-1]
		}
		segs := strings.Split(path, "/")
		candidate = segs[len(segs)-1]
	}

	candidate = strings.TrimPrefix(candidate, "@")
	if !handleRe.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}
