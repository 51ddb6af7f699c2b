package config

// NewDefaultPolicy returns the permissions required by the catalog routes
// when no policy file is configured.
func NewDefaultPolicy() *Policy {
	return &Policy{
		Routes: []Route{
			{Method: "GET", Path: "/movies", Permission: "get:movies"},
			{Method: "GET", Path: "/actors", Permission: "get:actors"},
			{Method: "POST", Path: "/movies", Permission: "post:movies"},
			{Method: "POST", Path: "/actors", Permission: "post:actors"},
			{Method: "PATCH", Path: "/movies/{id}", Permission: "patch:movies"},
			{Method: "PATCH", Path: "/actors/{id}", Permission: "patch:actors"},
			{Method: "DELETE", Path: "/movies/{id}", Permission: "delete:movies"},
			{Method: "DELETE", Path: "/actors/{id}", Permission: "delete:actors"},
		},
	}
}
