package engine

import "strings"

// NewExpression builds the Expression for an interpolation line.
func NewExpression(text string) *Expression {
	return &Expression{
		Source:       text,
		Placeholders: ExtractPlaceholders(text),
	}
}

// ExtractPlaceholders returns, in order and with duplicates, every
// whitespace-delimited token of text that contains both "{{" and "}}".
// A placeholder glued to neighbouring words is returned with them.
func ExtractPlaceholders(text string) []string {
	var found []string
	for _, word := range strings.Fields(text) {
		if strings.Contains(word, varOpen) && strings.Contains(word, varClose) {
			found = append(found, word)
		}
	}
	return found
}

// placeholderName strips the interpolation markers from a placeholder token.
// "{{name}}," yields "name".
func placeholderName(token string) string {
	i := strings.Index(token, varOpen)
	j := strings.Index(token, varClose)
	if i < 0 || j < i+len(varOpen) {
		return ""
	}
	return token[i+len(varOpen) : j]
}
