package domain

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID      string
	Name    string
	IsAdmin bool
}
