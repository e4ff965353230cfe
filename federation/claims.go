package federation

// Claims is the identity extracted from a successful token exchange.
//
// Subject is always present and non-empty; it is the only field guaranteed
// stable across logins. Name and Email are optional; the provider may omit
// either. Raw passes through every claim of the ID token unmodified for
// downstream consumers.
type Claims struct {
	Subject string
	Name    string
	Email   string
	Raw     map[string]any

	// Enriched reports whether the optional user-info fetch succeeded and
	// its fields were merged in. The claims are complete without it.
	Enriched bool
}

// merge fills empty Name/Email from the user-info response and records the
// enrichment. ID-token claims win when both carry a value.
func (c *Claims) merge(name, email string) {
	if c.Name == "" {
		c.Name = name
	}
	if c.Email == "" {
		c.Email = email
	}
	c.Enriched = true
}
