package sharing

import (
	"fmt"
	"strings"
)

// Level is a totally ordered permission level: view < download < edit.
type Level string

const (
	LevelView     Level = "view"
	LevelDownload Level = "download"
	LevelEdit     Level = "edit"
)

var levelRank = map[Level]int{
	LevelView:     1,
	LevelDownload: 2,
	LevelEdit:     3,
}

// ParseLevel converts a wire string into a Level.
func ParseLevel(raw string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := levelRank[l]; !ok {
		return "", fmt.Errorf("invalid permission level %q", raw)
	}
	return l, nil
}

// Valid reports whether the level is one of the known values.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Allows reports whether the level satisfies the required level.
func (l Level) Allows(required Level) bool {
	return levelRank[l] >= levelRank[required]
}
