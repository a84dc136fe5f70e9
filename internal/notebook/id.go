package notebook

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const idSuffixLength = 9

// idSuffixSpace is 36^9, the number of distinct base36 suffixes.
const idSuffixSpace = 101559956668416

var idPattern = regexp.MustCompile(`^note_\d+(_[0-9a-z]+)?$`)

// NewID generates an id of the form note_<unix millis>_<9 base36 chars>.
func NewID() string {
	return newIDAt(time.Now(), rand.Uint64N(idSuffixSpace))
}

func newIDAt(now time.Time, n uint64) string {
	suffix := strconv.FormatUint(n%idSuffixSpace, 36)
	if len(suffix) < idSuffixLength {
		suffix = strings.Repeat("0", idSuffixLength-len(suffix)) + suffix
	}
	return fmt.Sprintf("note_%d_%s", now.UnixMilli(), suffix)
}

// IsGeneratedID reports whether id has the shape produced by NewID or by older releases.
func IsGeneratedID(id string) bool {
	return idPattern.MatchString(id)
}
