package config

// Policy maps each protected route to the permission it requires.
type Policy struct {
	Routes []Route `yaml:"routes"`
}

// Route is a single protected endpoint. An empty Permission means the route
// requires a valid token but no particular permission.
type Route struct {
	Method     string `yaml:"method"`
	Path       string `yaml:"path"`
	Permission string `yaml:"permission"`
}

// Pattern is the route in the form accepted by http.ServeMux.
func (r Route) Pattern() string {
	return r.Method + " " + r.Path
}
