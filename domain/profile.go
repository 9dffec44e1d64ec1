package domain

// Profile is the identity directory's view of a user. Signup and the
// friend graph live outside this subsystem; only the lookup the gateway
// needs is modeled here.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
