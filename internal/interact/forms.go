package interact

import "strings"

// FormType classifies a page form by its field-presence signature.
type FormType string

const (
	FormLogin            FormType = "login"
	FormSearch           FormType = "search"
	FormNewsletter       FormType = "newsletter"
	FormContactSubscribe FormType = "contact-subscribe"
	FormRegistration     FormType = "registration"
	FormContact          FormType = "contact"
	FormOther            FormType = "other"
)

// FormInfo is the non-destructive summary of one discovered form.
type FormInfo struct {
	Index       int      `json:"index"`
	Type        FormType `json:"type"`
	Visible     bool     `json:"visible"`
	FieldLabels []string `json:"fieldLabels,omitempty"`
}

// formShape is what the discovery script reports per form.
type formShape struct {
	Passwords  int
	Emails     int
	Searches   int
	Texts      int
	Checkboxes int
	Textareas  int
	Total      int
	Visible    bool
	Labels     []string
	Attrs      string // lowercased id/name/class/action soup for keyword hints
}

// classifyForm maps a field-presence signature to a form type. Order
// matters: more specific signatures are ruled out before the catch-alls.
func classifyForm(s formShape) FormType {
	switch {
	case s.Passwords >= 2:
		return FormRegistration
	case s.Passwords == 1 && (s.Emails > 0 || s.Texts > 0):
		if containsAny(s.Attrs, "register", "signup", "sign-up") {
			return FormRegistration
		}
		return FormLogin
	case s.Searches > 0,
		s.Total == 1 && s.Texts == 1 && containsAny(s.Attrs, "search", "suche", "query", "q="):
		return FormSearch
	case s.Emails > 0 && s.Textareas > 0:
		return FormContact
	case s.Emails > 0 && s.Checkboxes > 0:
		return FormContactSubscribe
	case s.Emails > 0 && s.Total <= 2:
		return FormNewsletter
	case s.Emails > 0 && containsAny(s.Attrs, "newsletter", "subscribe"):
		return FormNewsletter
	case s.Textareas > 0:
		return FormContact
	default:
		return FormOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isPhoneLink reports whether an anchor looks like a telephone or
// messenger contact trigger, the kind that binds click trackers.
func isPhoneLink(href, text string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	switch {
	case strings.HasPrefix(h, "tel:"),
		strings.HasPrefix(h, "callto:"),
		strings.HasPrefix(h, "whatsapp:"),
		strings.Contains(h, "wa.me/"),
		strings.Contains(h, "api.whatsapp.com"):
		return true
	}
	return looksLikePhone(text)
}

// looksLikePhone is the heuristic for anchor text: mostly digits with
// phone punctuation, at least seven digits.
func looksLikePhone(text string) bool {
	digits, other := 0, 0
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == '/' || r == '(' || r == ')' || r == '.' || r == ' ':
			// phone punctuation
		default:
			other++
		}
	}
	return digits >= 7 && other == 0
}
