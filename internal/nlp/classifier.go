// Package nlp defines the boundary to the external message classifier.
package nlp

import "context"

type Intent string

const (
	IntentGreeting       Intent = "greeting"
	IntentFarewell       Intent = "farewell"
	IntentAgreeing       Intent = "agreeing"
	IntentRefusing       Intent = "refusing"
	IntentShowProducts   Intent = "showProducts"
	IntentAddToCart      Intent = "addToCart"
	IntentViewCart       Intent = "viewCart"
	IntentRemoveFromCart Intent = "removeFromCart"
	IntentSelectByNumber Intent = "selectByNumber"
	IntentCheckout       Intent = "checkout"
	IntentNone           Intent = "None"
)

type Result struct {
	Intent   Intent
	Entities map[string]string
}

// Classifier turns free text into an intent. The production model lives
// outside this module; anything satisfying this interface plugs in.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}
