package orion

// Subscription of the broker's NGSI v2 API. Pointer fields are left out
// when creating a subscription.
type Subscription struct {
	ID           *string      `json:"id,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Status       *string      `json:"status,omitempty"`
	Subject      Subject      `json:"subject"`
	Notification Notification `json:"notification"`
}

type Subject struct {
	Entities  []EntitySelector `json:"entities"`
	Condition Condition        `json:"condition"`
}

type EntitySelector struct {
	IDPattern *string `json:"idPattern,omitempty"`
	Type      *string `json:"type,omitempty"`
}

type Condition struct {
	Attrs                  []string `json:"attrs"`
	NotifyOnMetadataChange *bool    `json:"notifyOnMetadataChange,omitempty"`
}

type Notification struct {
	HTTP HTTPNotification `json:"http"`
}

type HTTPNotification struct {
	URL string `json:"url"`
}

// NewSubscription builds a subscription notifying url whenever one of
// attrs changes on an entity matching idPattern and entityType. An empty
// idPattern matches every id, an empty entityType every type.
func NewSubscription(description, idPattern, entityType string, attrs []string, url string) Subscription {
	if idPattern == "" {
		idPattern = ".*"
	}
	sel := EntitySelector{IDPattern: &idPattern}
	if entityType != "" {
		sel.Type = &entityType
	}
	return Subscription{
		Description: &description,
		Subject: Subject{
			Entities:  []EntitySelector{sel},
			Condition: Condition{Attrs: attrs},
		},
		Notification: Notification{HTTP: HTTPNotification{URL: url}},
	}
}

// DescriptionText returns the description or "" if unset.
func (s Subscription) DescriptionText() string {
	if s.Description == nil {
		return ""
	}
	return *s.Description
}
