package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/setupdesk/setup-desk/internal/deskerr"
	"github.com/setupdesk/setup-desk/internal/llm"
)

type Intent string

const (
	IntentInstall Intent = "install"
	IntentOther   Intent = "other"
)

// Source records which pass decided the classification.
type Source string

const (
	SourcePattern  Source = "pattern"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Result is the structured classification of one piece of user text. When the
// model response could not be parsed, Intent is IntentOther, Source is
// SourceFallback and FallbackReason says why.
type Result struct {
	Intent         Intent
	Package        string
	Version        string
	Source         Source
	FallbackReason string
}

// installPatterns are tried in order; the first match wins and its captured
// token is the package name. Matching deterministically first keeps the
// common phrasings auditable and free of model nondeterminism.
var installPatterns = []*regexp.Regexp{
	regexp.MustCompile(`pip\s+install\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`conda\s+install\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`please\s+install\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`can\s+you\s+install\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`install\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`i\s+need\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`setup\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`add\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`get\s+([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`download\s+([a-zA-Z0-9_-]+)`),
}

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`version\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`\bv(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`==\s*(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`>=\s*(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(\d+(?:\.\d+)*)\s*version`),
}

// Classifier turns free-form text into a structured install intent. The
// deterministic pattern pass runs first; only genuinely ambiguous phrasing
// reaches the completion model.
type Classifier struct {
	completer llm.Completer
	logger    *slog.Logger
}

func New(completer llm.Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{completer: completer, logger: logger}
}

// Classify resolves the intent of the given text. An error is returned only
// when the completion collaborator itself fails; an unparseable response
// fails open to IntentOther.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Result{Intent: IntentOther, Source: SourceFallback, FallbackReason: "empty input"}, nil
	}

	for _, pattern := range installPatterns {
		match := pattern.FindStringSubmatch(lowered)
		if match == nil {
			continue
		}
		result := Result{
			Intent:  IntentInstall,
			Package: match[1],
			Source:  SourcePattern,
		}
		result.Version = extractVersion(lowered)
		c.logger.Info("intent pattern matched", "package", result.Package, "version", orLatest(result.Version))
		return result, nil
	}

	if c.completer == nil {
		return Result{Intent: IntentOther, Source: SourceFallback, FallbackReason: "no completion model configured"}, nil
	}

	response, err := c.completer.Complete(ctx, buildPrompt(text))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", deskerr.ErrClassification, err)
	}
	return c.parseModelResponse(response), nil
}

func extractVersion(lowered string) string {
	for _, pattern := range versionPatterns {
		if match := pattern.FindStringSubmatch(lowered); match != nil {
			return match[1]
		}
	}
	return ""
}

func buildPrompt(text string) string {
	var prompt strings.Builder
	prompt.WriteString("Decide whether the following user input is a software package installation request.\n\n")
	prompt.WriteString("User input: \"")
	prompt.WriteString(strings.TrimSpace(text))
	prompt.WriteString("\"\n\n")
	prompt.WriteString("Installation requests ask to install, setup, add, download or obtain a package, library or tool.\n")
	prompt.WriteString("Questions about a package are not installation requests.\n\n")
	prompt.WriteString("Respond with only this JSON object and nothing else:\n")
	prompt.WriteString(`{"intent": "install" or "other", "package": "package name or null", "version": "version or null"}`)
	prompt.WriteString("\n\nExamples:\n")
	prompt.WriteString(`"Install numpy" -> {"intent": "install", "package": "numpy", "version": null}` + "\n")
	prompt.WriteString(`"Install TensorFlow 2.13" -> {"intent": "install", "package": "tensorflow", "version": "2.13"}` + "\n")
	prompt.WriteString(`"What is PyTorch?" -> {"intent": "other", "package": null, "version": null}` + "\n")
	return prompt.String()
}

type modelIntent struct {
	Intent  string `json:"intent"`
	Package string `json:"package"`
	Version string `json:"version"`
}

func (c *Classifier) parseModelResponse(response string) Result {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return Result{Intent: IntentOther, Source: SourceFallback, FallbackReason: "empty model response"}
	}

	var decoded modelIntent
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		// The model wrapped the JSON in prose; try the embedded fragment.
		fragment := findFirstJSON(trimmed)
		if fragment == "" {
			c.logger.Warn("model response is not structured", "response", compact(trimmed))
			return Result{Intent: IntentOther, Source: SourceFallback, FallbackReason: "unparseable model response"}
		}
		if err := json.Unmarshal([]byte(fragment), &decoded); err != nil {
			return Result{Intent: IntentOther, Source: SourceFallback, FallbackReason: "unparseable embedded fragment"}
		}
	}

	packageName := strings.ToLower(strings.TrimSpace(decoded.Package))
	if strings.EqualFold(strings.TrimSpace(decoded.Intent), string(IntentInstall)) && packageName != "" && packageName != "null" {
		version := strings.TrimSpace(decoded.Version)
		if strings.EqualFold(version, "null") || strings.EqualFold(version, "latest") {
			version = ""
		}
		return Result{
			Intent:  IntentInstall,
			Package: packageName,
			Version: version,
			Source:  SourceModel,
		}
	}
	return Result{Intent: IntentOther, Source: SourceModel}
}

// findFirstJSON locates the first outer-most JSON object in the text.
func findFirstJSON(input string) string {
	start := strings.Index(input, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		char := input[i]
		if inString {
			if escaped {
				escaped = false
			} else if char == '\\' {
				escaped = true
			} else if char == '"' {
				inString = false
			}
			continue
		}
		switch char {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := input[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}

func compact(value string) string {
	normalized := strings.Join(strings.Fields(value), " ")
	if len(normalized) <= 200 {
		return normalized
	}
	return normalized[:200] + "..."
}

func orLatest(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}
