// Package lang carries the request language and renders rejection reasons
// as short messages for the scanning app.
package lang

import (
	"context"

	"github.com/PaulFidika/mealkit/reject"
)

// Default is used when nothing better is known.
const Default = "en"

type ctxKey struct{}

// WithLanguage attaches a request language to ctx.
func WithLanguage(ctx context.Context, language string) context.Context {
	return context.WithValue(ctx, ctxKey{}, language)
}

// FromContext reads the request language from ctx.
func FromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKey{}).(string)
	return s, ok && s != ""
}

var messages = map[string]map[reject.Reason]string{
	"en": {
		reject.MalformedPayload:     "The scan could not be read. Try again.",
		reject.InvalidSignature:     "This beacon is not recognised.",
		reject.CredentialNotFound:   "No credential is registered for this device.",
		reject.CredentialRevoked:    "This credential is no longer active. Enroll again.",
		reject.InvalidAssertion:     "Device verification failed. Try again.",
		reject.ReplayDetected:       "This credential has been suspended. Contact the hostel office.",
		reject.AlreadyEnrolled:      "A credential is already registered.",
		reject.NoServiceNow:         "No meal is being served right now.",
		reject.LocationRequired:     "Turn on location to check in here.",
		reject.GeofenceViolation:    "You are too far from the dining hall.",
		reject.NoEntitlement:        "You do not have a meal plan for this meal.",
		reject.ConfirmationRequired: "This meal needs an advance confirmation.",
		reject.DuplicateScan:        "Attendance for this meal is already recorded.",
		reject.Forbidden:            "You are not allowed to do that.",
		reject.StorageUnavailable:   "Service is busy. Try again in a moment.",
	},
	"hi": {
		reject.MalformedPayload:     "स्कैन पढ़ा नहीं जा सका। फिर से प्रयास करें।",
		reject.InvalidSignature:     "यह बीकन मान्य नहीं है।",
		reject.CredentialNotFound:   "इस डिवाइस के लिए कोई क्रेडेंशियल पंजीकृत नहीं है।",
		reject.CredentialRevoked:    "यह क्रेडेंशियल अब सक्रिय नहीं है। फिर से पंजीकरण करें।",
		reject.InvalidAssertion:     "डिवाइस सत्यापन विफल रहा। फिर से प्रयास करें।",
		reject.ReplayDetected:       "यह क्रेडेंशियल निलंबित है। छात्रावास कार्यालय से संपर्क करें।",
		reject.AlreadyEnrolled:      "एक क्रेडेंशियल पहले से पंजीकृत है।",
		reject.NoServiceNow:         "अभी कोई भोजन नहीं परोसा जा रहा है।",
		reject.LocationRequired:     "यहाँ उपस्थिति दर्ज करने के लिए लोकेशन चालू करें।",
		reject.GeofenceViolation:    "आप भोजनालय से बहुत दूर हैं।",
		reject.NoEntitlement:        "इस भोजन के लिए आपकी कोई मील योजना नहीं है।",
		reject.ConfirmationRequired: "इस भोजन के लिए पहले से पुष्टि आवश्यक है।",
		reject.DuplicateScan:        "इस भोजन की उपस्थिति पहले ही दर्ज है।",
		reject.Forbidden:            "आपको इसकी अनुमति नहीं है।",
		reject.StorageUnavailable:   "सेवा व्यस्त है। थोड़ी देर में फिर प्रयास करें।",
	},
}

// Supported lists the languages with a message catalog.
func Supported() []string { return []string{"en", "hi"} }

// Message renders reason in language, falling back to English and then to
// the reason code itself.
func Message(language string, reason reject.Reason) string {
	if m, ok := messages[language][reason]; ok {
		return m
	}
	if m, ok := messages[Default][reason]; ok {
		return m
	}
	return string(reason)
}
