package session

// State is the persisted dialogue mode that disambiguates how the next
// intent is interpreted.
type State string

const (
	StateNone         State = "" // user exists but never transitioned
	StateGreeting     State = "greeting"
	StateShowProducts State = "showProducts"
	StateAddToCart    State = "addToCart"
	StateCheckout     State = "checkout"
	StateFarewell     State = "farewell"
)
