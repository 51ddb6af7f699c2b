package config

// Permission returns the permission required for the route with the given
// method and path pattern.
func (p *Policy) Permission(method, path string) (string, bool) {
	for _, r := range p.Routes {
		if r.Method == method && r.Path == path {
			return r.Permission, true
		}
	}

	return "", false
}
