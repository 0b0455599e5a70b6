package filecache

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// GitTimeout bounds how long consulting version control for a file's
// hash may take before giving up silently (spec §4.8, §5).
const GitTimeout = 3 * time.Second

// Fingerprint identifies the last-seen state of a file on disk.
type Fingerprint struct {
	GitHash string // empty if unavailable
	MTimeMS int64
}

// fingerprintOf reads the filesystem mtime and, on a short bounded
// budget, the file's last commit hash. Git failures are silent: a repo
// that isn't present, or too slow to answer, just yields an empty hash.
func fingerprintOf(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}

	fp := Fingerprint{MTimeMS: info.ModTime().UnixMilli()}
	fp.GitHash = gitHashOf(path)
	return fp, nil
}

// gitHashOf returns the full hash of the last commit touching path,
// or "" if the lookup fails or times out. Retries are capped at two,
// at a constant 50ms interval, and every attempt shares the GitTimeout
// context so a flaky git subprocess cannot exceed the overall budget.
func gitHashOf(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), GitTimeout)
	defer cancel()

	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = parentDir(path)
	}

	var hash string
	operation := func() error {
		cmd := exec.CommandContext(ctx, "git", "-C", dir, "log", "-1", "--format=%H", "--", path)
		out, err := cmd.Output()
		if err != nil {
			return err
		}
		hash = strings.TrimSpace(string(out))
		if hash == "" {
			return fmt.Errorf("no commit history for %s", path)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return ""
	}
	return hash
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}

func formatMTime(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

func parseMTime(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
