// Package container reads this process's container id from /proc/self/cgroup,
// so the agent uploader can attribute traces to the right container via the
// Datadog-Container-ID header.
package container

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
)

const defaultCgroupPath = "/proc/self/cgroup"

const (
	uuidSource      = `[0-9a-f]{8}[-_][0-9a-f]{4}[-_][0-9a-f]{4}[-_][0-9a-f]{4}[-_][0-9a-f]{12}`
	containerSource = `[0-9a-f]{64}`
	taskSource      = `[0-9a-f]{32}-\d+`
)

var lineRegexp = regexp.MustCompile(fmt.Sprintf(`.*(%s|%s|%s)(?:\.scope)?$`, uuidSource, containerSource, taskSource))

// ReadID best-effort reads the current process's container id. It returns
// the empty string when not running inside a container or when the cgroup
// file cannot be read, neither of which is an error worth surfacing.
func ReadID() string {
	return readFrom(defaultCgroupPath)
}

func readFrom(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	return parse(f)
}

// parse scans cgroup-file-shaped lines (colon-separated, path in the last
// field) for a Docker, Kubernetes, or ECS-shaped container id.
func parse(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if m := lineRegexp.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1]
		}
	}
	return ""
}
