package hue

// streamMessage is one SSE data payload entry from /eventstream/clip/v2.
type streamMessage struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data []resourceData `json:"data"`
}

// resourceData is a changed resource inside a stream message.
type resourceData struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Button         *buttonData     `json:"button,omitempty"`
	RelativeRotary *relativeRotary `json:"relative_rotary,omitempty"`
}

type buttonData struct {
	ButtonReport *struct {
		Event   string `json:"event"`
		Updated string `json:"updated"`
	} `json:"button_report,omitempty"`
	// Older firmware only reports last_event.
	LastEvent string `json:"last_event,omitempty"`
}

type relativeRotary struct {
	LastEvent *struct {
		Action   string `json:"action"`
		Rotation struct {
			Direction string `json:"direction"`
			Steps     int    `json:"steps"`
			Duration  int    `json:"duration"`
		} `json:"rotation"`
	} `json:"last_event,omitempty"`
	RotaryReport *struct {
		Updated string `json:"updated"`
	} `json:"rotary_report,omitempty"`
}
