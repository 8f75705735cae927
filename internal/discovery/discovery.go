// Package discovery walks the configured save roots and binds each
// candidate file to the most specific matching path template.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/romm-sync/saveport/internal/config"
	"github.com/romm-sync/saveport/internal/pathfmt"
)

// Match is a discovered candidate save file: its path, the template that
// bound it, and the variables extracted from that binding.
type Match struct {
	Path   string
	Format *pathfmt.FormatString
	Vars   map[string]string
}

// Result is one item of the discovery stream: either a Match or a non-fatal
// per-entry error.
type Result struct {
	Match Match
	Err   error
}

// Discover walks every root derived from cfg's save templates and streams
// matches (and non-fatal per-entry errors) on the returned channel. The
// channel is closed when the walk completes or ctx is cancelled.
func Discover(ctx context.Context, cfg *config.Config, logger *slog.Logger) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)

		templates := cfg.SaveTemplates()
		roots := saveRoots(cfg, templates, logger)

		for _, root := range roots {
			if walkRoot(ctx, root, cfg, templates, out) {
				return // context cancelled
			}
		}
	}()

	return out
}

// SaveRoots computes the directory roots implied by cfg's save templates'
// literal prefixes, after the deny list and an existence check —
// the same root list Discover walks. Exported for the daemon's filesystem
// watcher, which needs to know what to watch without re-deriving the
// prefix/filter logic.
func SaveRoots(cfg *config.Config, logger *slog.Logger) []string {
	return saveRoots(cfg, cfg.SaveTemplates(), logger)
}

// saveRoots computes, for each save template, the directory implied by its
// literal prefix, then keeps only those that no deny entry covers and that
// exist as directories. The allow list is not applied to roots (an allow
// entry may lie below a root); it is applied to each walked path. Non-fatal
// lookup failures are logged and the root dropped.
func saveRoots(cfg *config.Config, templates []*pathfmt.FormatString, logger *slog.Logger) []string {
	seen := make(map[string]bool)
	var roots []string

	for _, tmpl := range templates {
		root := tmpl.Prefix()
		if seen[root] {
			continue
		}
		seen[root] = true

		denied := false
		for _, prefix := range cfg.System.Deny {
			if strings.HasPrefix(root, prefix) {
				denied = true
			}
		}
		if denied {
			continue
		}

		info, err := os.Lstat(root)
		switch {
		case err == nil:
			if !info.IsDir() {
				logger.Warn("discovery: configured save path is not a directory", "path", root)
				continue
			}
			roots = append(roots, root)
		case os.IsNotExist(err):
			logger.Debug("discovery: configured save path not found, skipping", "path", root)
		default:
			logger.Error("discovery: error looking for save directory", "path", root, "error", err)
		}
	}

	return roots
}

// walkRoot recursively walks root, filtering and matching every entry.
// Returns true if ctx was cancelled mid-walk.
func walkRoot(ctx context.Context, root string, cfg *config.Config, templates []*pathfmt.FormatString, out chan<- Result) bool {
	cancelled := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			cancelled = true
			return ctxErr
		}

		if err != nil {
			if !sendResult(ctx, out, Result{Err: fmt.Errorf("discovery: walking %q: %w", path, err)}) {
				cancelled = true
				return ctx.Err()
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !passesFilters(cfg, path) {
			return nil
		}

		format, vars := bestMatch(templates, path)
		if format == nil {
			return nil
		}

		if !isRegularOrUnknown(path) {
			return nil
		}

		sendResult(ctx, out, Result{Match: Match{Path: path, Format: format, Vars: vars}})
		return nil
	})

	if err != nil && !cancelled && !errors.Is(err, fs.SkipDir) {
		sendResult(ctx, out, Result{Err: fmt.Errorf("discovery: walking %q: %w", root, err)})
	}

	return cancelled
}

func sendResult(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// pathAllowed applies the allow/deny prefix lists.
func pathAllowed(cfg *config.Config, path string) bool {
	if cfg.System.Allow != nil {
		ok := false
		for _, prefix := range cfg.System.Allow {
			if strings.HasPrefix(path, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, prefix := range cfg.System.Deny {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// passesFilters applies allow/deny and, if configured, the hidden-file
// filter to a discovered path.
func passesFilters(cfg *config.Config, path string) bool {
	if !pathAllowed(cfg, path) {
		return false
	}
	if cfg.System.SkipHidden && isHidden(path) {
		return false
	}
	return true
}

// isHidden reports whether path's final component's file stem begins with
// ".". The file stem is the portion of the base name before the final dot,
// except that a dot in the leading position of the base name does not count
// as an extension separator (so ".bashrc" has stem ".bashrc", not "").
func isHidden(path string) bool {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	stem := base
	if idx > 0 {
		stem = base[:idx]
	}
	return strings.HasPrefix(stem, ".")
}

// bestMatch tries every template against path and returns the one producing
// the largest variable map — a more specific match wins ties are broken by
// template order, first-seen-largest.
func bestMatch(templates []*pathfmt.FormatString, path string) (*pathfmt.FormatString, map[string]string) {
	var best *pathfmt.FormatString
	var bestVars map[string]string

	for _, tmpl := range templates {
		vars, err := tmpl.Resolve(path)
		if err != nil {
			continue
		}
		if best == nil || len(vars) > len(bestVars) {
			best = tmpl
			bestVars = vars
		}
	}

	return best, bestVars
}

// isRegularOrUnknown stats path (following symlinks) and keeps it unless the
// stat succeeds and reports a non-regular file. A failed stat is permissive:
// the path is retained and the error surfaces later when the file is
// actually opened.
func isRegularOrUnknown(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Mode().IsRegular()
}
