package sos

// DefaultContacts are seeded into an empty contact store on startup.
func DefaultContacts() []Contact {
	return []Contact{
		{ID: 1, Name: "Mom", PhoneNumber: "+1234567890", Priority: 1},
		{ID: 2, Name: "Dad", PhoneNumber: "+1987654321", Priority: 2},
		{ID: 3, Name: "Doctor", PhoneNumber: "+1122334455", Priority: 3},
	}
}
