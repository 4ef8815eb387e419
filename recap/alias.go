package recap

// Aliases maps transport user identifiers to display names. It is built once
// from configuration and only read afterwards.
type Aliases map[string]string

// Resolve returns the display name for userID, or userID itself when no alias
// exists. An empty identifier resolves to "unknown" so the result is never empty.
func (a Aliases) Resolve(userID string) string {
	if name, ok := a[userID]; ok && name != "" {
		return name
	}
	if userID == "" {
		return "unknown"
	}
	return userID
}
