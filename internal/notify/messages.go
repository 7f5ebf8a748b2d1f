package notify

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	KeyGuestCompleted = "quiz.guest_completed"
	KeyCompleted      = "quiz.completed"
	KeySaveFailed     = "quiz.save_failed"
	KeyLoaded         = "quiz.loaded"
	KeyLoadFailed     = "quiz.load_failed"
)

var supported = []language.Tag{language.English, language.Malay}

var translations = map[language.Tag]map[string]string{
	language.English: {
		KeyGuestCompleted: "Quiz completed! You would have earned %d points with an account.",
		KeyCompleted:      "Quiz completed! You earned %d points.",
		KeySaveFailed:     "Failed to save progress",
		KeyLoaded:         "Quiz loaded with %d questions",
		KeyLoadFailed:     "Quiz not available: %s",
	},
	language.Malay: {
		KeyGuestCompleted: "Kuiz selesai! Anda akan memperoleh %d mata jika mempunyai akaun.",
		KeyCompleted:      "Kuiz selesai! Anda memperoleh %d mata.",
		KeySaveFailed:     "Gagal menyimpan kemajuan",
		KeyLoaded:         "Kuiz dimuatkan dengan %d soalan",
		KeyLoadFailed:     "Kuiz tidak tersedia: %s",
	},
}

// Messages renders notification texts for one locale.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

// NewMessages returns the texts for locale, falling back to English for
// unsupported or malformed locales.
func NewMessages(locale string) (*Messages, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range translations {
		for key, msg := range entries {
			if err := b.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("register message %s/%s: %w", tag, key, err)
			}
		}
	}

	requested, err := language.Parse(locale)
	if err != nil {
		requested = language.English
	}
	_, idx, _ := language.NewMatcher(supported).Match(requested)
	tag := supported[idx]

	return &Messages{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}, nil
}

// Locale returns the locale the texts are rendered in.
func (m *Messages) Locale() string {
	return m.tag.String()
}

// Text renders key with args.
func (m *Messages) Text(key string, args ...any) string {
	return m.printer.Sprintf(key, args...)
}
