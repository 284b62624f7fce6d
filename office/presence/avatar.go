package presence

import "strings"

// Tone is the skin tone variant of an avatar.
type Tone string

const (
	ToneLight       Tone = "light"
	ToneMediumLight Tone = "medium-light"
	ToneMedium      Tone = "medium"
	ToneMediumDark  Tone = "medium-dark"
	ToneDark        Tone = "dark"

	DefaultTone = ToneMedium
)

var tones = map[Tone]bool{
	ToneLight:       true,
	ToneMediumLight: true,
	ToneMedium:      true,
	ToneMediumDark:  true,
	ToneDark:        true,
}

// Avatar is the visual identity a participant picks when joining.
type Avatar struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
	Tone  Tone   `json:"tone"`
	Label string `json:"label"`
}

// catalog lists the avatars a client may choose. The first entry is the default.
var catalog = []Avatar{
	{ID: "developer", Emoji: "🧑‍💻", Label: "Desarrollo"},
	{ID: "pilot", Emoji: "🧑‍✈️", Label: "Piloto"},
	{ID: "astronaut", Emoji: "🧑‍🚀", Label: "Astronauta"},
	{ID: "chef", Emoji: "🧑‍🍳", Label: "Cocina"},
	{ID: "artist", Emoji: "🧑‍🎨", Label: "Arte"},
	{ID: "scientist", Emoji: "🧑‍🔬", Label: "Ciencia"},
	{ID: "teacher", Emoji: "🧑‍🏫", Label: "Docencia"},
}

// Catalog returns a copy of the selectable avatars.
func Catalog() []Avatar {
	out := make([]Avatar, len(catalog))
	for i, a := range catalog {
		a.Tone = DefaultTone
		out[i] = a
	}
	return out
}

// DefaultAvatar returns the avatar used when a client sends an unknown one.
func DefaultAvatar() Avatar {
	a := catalog[0]
	a.Tone = DefaultTone
	return a
}

// IsTone reports whether t is a known tone.
func IsTone(t string) bool {
	return tones[Tone(t)]
}

// SanitizeAvatar resolves a client supplied avatar id and tone against the
// catalog. Emoji and label always come from the catalog.
func SanitizeAvatar(id, tone string) Avatar {
	id = strings.ToLower(strings.TrimSpace(id))

	avatar := DefaultAvatar()
	for _, a := range catalog {
		if a.ID == id {
			avatar = a
			break
		}
	}

	avatar.Tone = DefaultTone
	if IsTone(tone) {
		avatar.Tone = Tone(tone)
	}
	return avatar
}
