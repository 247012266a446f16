package languages

// Language is the closed set of execution languages. Free-form strings from the
// wire are mapped through Parse; anything unrecognized becomes Unknown rather
// than falling into a default pipeline.
type Language string

const (
	JavaScript Language = "javascript"
	Python     Language = "python"
	C          Language = "c"
	Go         Language = "go"
	Unknown    Language = ""
)

// Default is the language new rooms are seeded with.
const Default = JavaScript

var aliases = map[string]Language{
	"javascript": JavaScript,
	"js":         JavaScript,
	"node":       JavaScript,
	"python":     Python,
	"python3":    Python,
	"py":         Python,
	"c":          C,
	"go":         Go,
	"golang":     Go,
}

// Parse maps a wire-level language tag to a Language. The second return is
// false for tags outside the supported set.
func Parse(tag string) (Language, bool) {
	lang, ok := aliases[tag]
	if !ok {
		return Unknown, false
	}
	return lang, true
}

func (l Language) String() string {
	return string(l)
}

// SourceFile is the fixed entry-point filename for the language's workspace.
func (l Language) SourceFile() string {
	switch l {
	case JavaScript:
		return "main.js"
	case Python:
		return "main.py"
	case C:
		return "main.c"
	case Go:
		return "main.go"
	}
	return ""
}

// All lists the supported languages in a stable order.
func All() []Language {
	return []Language{JavaScript, Python, C, Go}
}
