package domain

// Authentication is the successful outcome of a ticket validation.
type Authentication struct {
	// Principal is the verified username from the authenticationSuccess
	// element.
	Principal string

	// Attributes is the optional attribute mapping. Nil when the success
	// element carried no attributes sub-element.
	Attributes Attributes
}
