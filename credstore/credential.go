package credstore

// Lifetime is the persistence class of a bearer credential.
type Lifetime int

const (
	// Durable credentials survive process restarts ("remember me").
	Durable Lifetime = iota + 1
	// Ephemeral credentials live only as long as the current session.
	Ephemeral
)

func (l Lifetime) String() string {
	switch l {
	case Durable:
		return "durable"
	case Ephemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

// LifetimeFor maps a "remember me" choice to a lifetime class.
func LifetimeFor(remember bool) Lifetime {
	if remember {
		return Durable
	}
	return Ephemeral
}

// Credential is an opaque bearer token tagged with its lifetime class.
type Credential struct {
	Lifetime Lifetime
	Token    string
}

// Remembered reports whether the credential was saved with "remember me".
func (c Credential) Remembered() bool {
	return c.Lifetime == Durable
}
