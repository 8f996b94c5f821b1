package internal

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ArtifactSource records which extraction rule produced an artifact
type ArtifactSource string

const (
	SourceToolOutput  ArtifactSource = "tool-output"
	SourceTaggedFence ArtifactSource = "tagged-fence"
	SourceAnyFence    ArtifactSource = "fence"
)

// Opening fences must start a line so inline ``` in prose is not taken for one.
var anyFencePattern = regexp.MustCompile("(?ms)^[ \\t]*```[^\\n`]*\\r?\\n(.*?)```")

// taggedFencePattern matches fences opened with exactly the given language marker
func taggedFencePattern(lang string) *regexp.Regexp {
	return regexp.MustCompile("(?ims)^[ \\t]*```[ \\t]*" + regexp.QuoteMeta(lang) + "[ \\t]*\\r?\\n(.*?)```")
}

// firstFence returns the first non-empty fenced body matched by re
func firstFence(re *regexp.Regexp, text string) (string, bool) {
	if re == nil || !strings.Contains(text, "```") {
		return "", false
	}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if code := strings.TrimSpace(m[1]); code != "" {
			return code, true
		}
	}
	return "", false
}

// ExtractCodeField looks up the first recognized code field in a tool output.
// Outputs that are not JSON objects (or JSON strings holding an object) never match.
func ExtractCodeField(output json.RawMessage, fields []string) (string, bool) {
	if len(output) == 0 || !gjson.ValidBytes(output) {
		return "", false
	}
	res := gjson.ParseBytes(output)
	if res.Type == gjson.String && gjson.Valid(res.Str) {
		// some tools double-encode their result
		res = gjson.Parse(res.Str)
	}
	if !res.IsObject() {
		return "", false
	}
	for _, field := range fields {
		v := res.Get(field)
		if v.Type != gjson.String {
			continue
		}
		if code := strings.TrimSpace(v.Str); code != "" {
			return code, true
		}
	}
	return "", false
}
