package schema

// ChatMessage is one turn of the conversation the Brief is distilled from.
type ChatMessage struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// Brief is the normalized requirements object extracted from the chat
// history and free-text input. Immutable once a run starts.
type Brief struct {
	Industry       string   `json:"industry"`
	BusinessType   string   `json:"business_type"`
	Tone           string   `json:"tone"`
	KeyServices    []string `json:"key_services"`
	TargetAudience string   `json:"target_audience"`
	PrimaryCTA     string   `json:"primary_cta"`
	Sections       []string `json:"sections_requested"`
	Notes          string   `json:"notes,omitempty"`
}

// DefaultBrief is the deterministic fallback used when brief normalization
// produces out-of-contract output. Generic enough to plan any page kind.
func DefaultBrief() *Brief {
	return &Brief{
		Industry:       "healthcare",
		BusinessType:   "clinic",
		Tone:           "professional",
		KeyServices:    []string{"Advanced Treatments", "Expert Care", "Personalized Service"},
		TargetAudience: "Health-conscious individuals seeking professional care",
		PrimaryCTA:     "Book a Free Consultation",
		Sections:       []string{"Header", "Hero", "Services", "Features", "Footer"},
	}
}
