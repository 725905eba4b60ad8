package session

import "os/user"

// currentUser resolves the author identity for a commit made through
// this session, falling back to the OS user and then a fixed default
// when the environment doesn't otherwise supply one.
func currentUser() (name, email string) {
	if u, err := user.Current(); err == nil {
		if u.Name != "" {
			name = u.Name
		} else if u.Username != "" {
			name = u.Username
		}
	}
	if name == "" {
		name = "vgitarchive"
	}
	email = name + "@localhost"
	return name, email
}
