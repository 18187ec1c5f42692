package scan

import (
	"bufio"
	"bytes"
	"strings"
)

const manifestPath = "META-INF/MANIFEST.MF"

// parseManifestClassPath extracts the Class-Path header from a MANIFEST.MF
// body, unfolding continuation lines (a leading space on the next physical
// line continues the previous one) before splitting on whitespace.
func parseManifestClassPath(data []byte) []string {
	unfolded := unfoldManifestLines(data)
	for _, line := range unfolded {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Class-Path") {
			continue
		}
		return strings.Fields(strings.TrimSpace(value))
	}
	return nil
}

// unfoldManifestLines joins a manifest's continuation lines (JAR spec
// §Manifest: a line starting with a single space extends the previous
// header value) back into one logical line per header.
func unfoldManifestLines(data []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(raw, " ") && len(lines) > 0 {
			lines[len(lines)-1] += raw[1:]
			continue
		}
		lines = append(lines, raw)
	}
	return lines
}
