// ABOUTME: Per-user privacy settings and their user-facing descriptors
// ABOUTME: Rows are created lazily with every flag defaulting to false
package models

// Settings holds one user's privacy preferences. A missing row reads as the
// zero value with the user id filled in.
type Settings struct {
	UserID         int64 `db:"user_id" json:"user_id"`
	GPT            bool  `db:"gpt" json:"gpt"`
	Lowercase      bool  `db:"lowercase" json:"lowercase"`
	Punctuation    bool  `db:"punctuation" json:"punctuation"`
	NotifyComments bool  `db:"notify_comments" json:"notify_comments"`
	NotifyReplies  bool  `db:"notify_replies" json:"notify_replies"`
	DMs            bool  `db:"dms" json:"dms"`
	PersonaDMs     bool  `db:"persona_dms" json:"persona_dms"`
}

// SettingDescriptor describes one settings flag for display surfaces.
// Identity marks the flags that feed the entropy estimate; the two
// notification flags do not.
type SettingDescriptor struct {
	Name     string `json:"name"`
	Display  string `json:"display"`
	Blurb    string `json:"blurb"`
	Identity bool   `json:"-"`
}

// SettingDescriptors lists every flag in display order.
var SettingDescriptors = []SettingDescriptor{
	{
		Name:     "gpt",
		Display:  "Use GPT",
		Blurb:    "Use a language model to transform your writing and make you harder to identify. (Note that this sends your messages to the model provider's servers.)",
		Identity: true,
	},
	{
		Name:     "lowercase",
		Display:  "lowercase everything",
		Blurb:    "everything you write anonymously will be made lowercase.",
		Identity: true,
	},
	{
		Name:     "punctuation",
		Display:  "Remove punctuation",
		Blurb:    "Removes some ASCII punctuation (commas apostrophes periods and question marks) from your anon messages",
		Identity: true,
	},
	{
		Name:    "notify_comments",
		Display: "Comment notifications",
		Blurb:   "Veil will DM you if someone sends a comment on a submission you wrote.",
	},
	{
		Name:    "notify_replies",
		Display: "Reply notifications",
		Blurb:   "Veil will DM you if someone replies to a comment you made.",
	},
	{
		Name:     "dms",
		Display:  "Receive DMs",
		Blurb:    "Users will be able to send direct messages to you anonymously through Veil.",
		Identity: true,
	},
	{
		Name:     "persona_dms",
		Display:  "Receive DMs via personas",
		Blurb:    "Users will be able to send direct messages to you using the names of your personas. You'll remain anonymous in these interactions.",
		Identity: true,
	},
}

// KnownSetting reports whether name is a defined settings flag.
func KnownSetting(name string) bool {
	for _, d := range SettingDescriptors {
		if d.Name == name {
			return true
		}
	}
	return false
}

// Flag returns the value of the named flag and whether the name is known.
func (s Settings) Flag(name string) (bool, bool) {
	switch name {
	case "gpt":
		return s.GPT, true
	case "lowercase":
		return s.Lowercase, true
	case "punctuation":
		return s.Punctuation, true
	case "notify_comments":
		return s.NotifyComments, true
	case "notify_replies":
		return s.NotifyReplies, true
	case "dms":
		return s.DMs, true
	case "persona_dms":
		return s.PersonaDMs, true
	}
	return false, false
}

// Enabled returns the names of all enabled flags in descriptor order.
func (s Settings) Enabled() []string {
	var names []string
	for _, d := range SettingDescriptors {
		if on, _ := s.Flag(d.Name); on {
			names = append(names, d.Name)
		}
	}
	return names
}

// SettingsFromNames builds a full settings row from the set of enabled flag
// names. Unknown names are ignored; absent names read as disabled (settings
// writes are full replaces, not patches).
func SettingsFromNames(userID int64, enabled []string) Settings {
	s := Settings{UserID: userID}
	for _, name := range enabled {
		switch name {
		case "gpt":
			s.GPT = true
		case "lowercase":
			s.Lowercase = true
		case "punctuation":
			s.Punctuation = true
		case "notify_comments":
			s.NotifyComments = true
		case "notify_replies":
			s.NotifyReplies = true
		case "dms":
			s.DMs = true
		case "persona_dms":
			s.PersonaDMs = true
		}
	}
	return s
}
