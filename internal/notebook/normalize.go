package notebook

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// CurrentSchemaVersion is stamped on every normalized note.
const CurrentSchemaVersion = 3

// maxDecodePasses bounds entity decoding of pathologically nested input.
const maxDecodePasses = 32

var textFields = []string{"chapter", "test", "part", "question", "errorReason", "tags"}

// Warning describes a value the normalizer had to replace or leave undecoded.
type Warning struct {
	NoteID  string
	Field   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s.%s: %s", w.NoteID, w.Field, w.Message)
}

// upgrade moves a record from version-1 to version. Every upgrade is
// idempotent, so all of them run on every record regardless of its stamp.
type upgrade struct {
	version int
	apply   func(n *Normalizer, m RawNote, warn func(field, msg string))
}

var upgrades = []upgrade{
	{version: 1, apply: upgradeLegacyFields},
	{version: 2, apply: upgradeKeyPoints},
	{version: 3, apply: upgradeTextAndDefaults},
}

// Normalizer converts notes of any historical shape to the current one.
type Normalizer struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type NormalizerOption func(*Normalizer)

func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

func WithIDGenerator(newID func() string) NormalizerOption {
	return func(n *Normalizer) { n.newID = newID }
}

func WithLogger(logger *slog.Logger) NormalizerOption {
	return func(n *Normalizer) { n.logger = logger }
}

func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		now:    time.Now,
		newID:  NewID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the canonical form of raw. It never fails: values that
// cannot be repaired are replaced by defaults and reported as warnings.
func (n *Normalizer) Normalize(raw RawNote) (Note, []Warning) {
	m := raw.clone()
	var warnings []Warning
	warn := func(field, msg string) {
		id := asString(m["id"])
		warnings = append(warnings, Warning{NoteID: id, Field: field, Message: msg})
		n.logger.Warn("normalize note", "id", id, "field", field, "reason", msg)
	}

	stored := m.toNote().SchemaVersion
	for _, u := range upgrades {
		if stored < u.version {
			n.logger.Debug("upgrade note", "id", asString(m["id"]), "version", u.version)
		}
		u.apply(n, m, warn)
	}

	note := m.toNote()
	note.SchemaVersion = max(stored, CurrentSchemaVersion)
	return note, warnings
}

// NormalizeNote normalizes an already typed note.
func (n *Normalizer) NormalizeNote(note Note) (Note, []Warning) {
	return n.Normalize(note.ToRaw())
}

// upgradeLegacyFields assigns ids, fixes dates and maps section to part.
func upgradeLegacyFields(n *Normalizer, m RawNote, warn func(field, msg string)) {
	if id := strings.TrimSpace(asString(m["id"])); id != "" {
		m["id"] = id
	} else {
		m["id"] = n.newID()
	}

	t, ok, missing := coerceDate(m["date"])
	switch {
	case ok:
		m["date"] = formatDate(t)
	case missing:
		m["date"] = formatDate(n.now())
	default:
		warn("date", fmt.Sprintf("unparseable date %v, using current time", m["date"]))
		m["date"] = formatDate(n.now())
	}

	if section := m.str("section"); section != "" && asString(m["part"]) == "" {
		m["part"] = section
	}
}

// upgradeKeyPoints merges keyPhrases and highlights. A non-empty merge
// replaces keyPoints.
func upgradeKeyPoints(_ *Normalizer, m RawNote, _ func(field, msg string)) {
	merged := nonBlank(append(trimmedStrings(m["keyPhrases"]), trimmedStrings(m["highlights"])...))
	delete(m, "keyPhrases")
	delete(m, "highlights")
	if len(merged) > 0 {
		m["keyPoints"] = merged
		return
	}
	m["keyPoints"] = nonBlank(asStrings(m["keyPoints"]))
}

func nonBlank(values []string) []string {
	out := []string{}
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// trimmedStrings trims a single legacy string value; list elements are kept as written.
func trimmedStrings(v any) []string {
	if s, ok := v.(string); ok {
		return asStrings(strings.TrimSpace(s))
	}
	return asStrings(v)
}

// upgradeTextAndDefaults repairs double-encoded text, fills defaults and
// canonicalizes the question type.
func upgradeTextAndDefaults(_ *Normalizer, m RawNote, warn func(field, msg string)) {
	for _, field := range append([]string{"content"}, textFields...) {
		s := asString(m[field])
		decoded, err := decodeEntities(s)
		if err != nil {
			warn(field, err.Error())
			decoded = s
		}
		m[field] = decoded
	}

	points := asStrings(m["keyPoints"])
	for i, p := range points {
		decoded, err := decodeEntities(p)
		if err != nil {
			warn(fmt.Sprintf("keyPoints[%d]", i), err.Error())
			continue
		}
		points[i] = decoded
	}
	m["keyPoints"] = nonBlank(points)

	m["audioData"] = nullable(m["audioData"])
	m["imageData"] = nullable(m["imageData"])

	questionType := asString(m["questionType"])
	if strings.TrimSpace(questionType) == "" {
		questionType = QuestionTypeOther
	}
	m["questionType"] = CanonicalQuestionType(questionType)

	m["enableIntensiveListening"] = m.toNote().EnableIntensiveListening
}

// nullable keeps non-empty strings and turns everything else into null.
func nullable(v any) any {
	if s := asNullableString(v); s != nil {
		return *s
	}
	return nil
}

// decodeEntities unescapes HTML entities until the text stops changing, which
// repairs text that was escaped more than once.
func decodeEntities(s string) (string, error) {
	if !strings.Contains(s, "&") {
		return s, nil
	}
	out := s
	for range maxDecodePasses {
		next := html.UnescapeString(out)
		if next == out {
			break
		}
		out = next
	}
	if !utf8.ValidString(out) {
		return s, fmt.Errorf("decoded text is not valid UTF-8")
	}
	return out, nil
}
