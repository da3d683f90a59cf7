package model

// SubscriptionInfo is the server's view of a subscription.
type SubscriptionInfo struct {
	SubscriptionID string   `json:"subscriptionId"`
	Created        string   `json:"created,omitempty"`
	IsStreaming    bool     `json:"isStreaming"`
	QueuedUpdates  int      `json:"queuedUpdates"`
	Objects        []string `json:"objects,omitempty"`
}

// SubscriptionInfoFromMap builds a SubscriptionInfo from a decoded JSON object.
func SubscriptionInfoFromMap(m map[string]any) (SubscriptionInfo, error) {
	var s SubscriptionInfo
	var err error
	if s.SubscriptionID, err = requireString(m, "subscriptionId"); err != nil {
		return SubscriptionInfo{}, err
	}
	if s.Created, err = optionalString(m, "created"); err != nil {
		return SubscriptionInfo{}, err
	}
	if s.IsStreaming, err = optionalBool(m, "isStreaming"); err != nil {
		return SubscriptionInfo{}, err
	}
	if s.QueuedUpdates, err = optionalInt(m, "queuedUpdates"); err != nil {
		return SubscriptionInfo{}, err
	}
	if s.Objects, err = optionalStrings(m, "objects"); err != nil {
		return SubscriptionInfo{}, err
	}
	return s, nil
}

// RegisterResult is the server acknowledgement of a register or
// unregister request.
type RegisterResult struct {
	Message      string `json:"message,omitempty"`
	TotalObjects int    `json:"totalObjects"`
}

// RegisterResultFromMap builds a RegisterResult. An empty map is valid.
func RegisterResultFromMap(m map[string]any) (RegisterResult, error) {
	var r RegisterResult
	var err error
	if r.Message, err = optionalString(m, "message"); err != nil {
		return RegisterResult{}, err
	}
	if r.TotalObjects, err = optionalInt(m, "totalObjects"); err != nil {
		return RegisterResult{}, err
	}
	return r, nil
}

// DeleteResult reports which subscriptions a delete removed.
type DeleteResult struct {
	Message      string   `json:"message,omitempty"`
	Unsubscribed []string `json:"unsubscribed,omitempty"`
	NotFound     []string `json:"not_found,omitempty"`
}

// DeleteResultFromMap builds a DeleteResult. An empty map is valid.
func DeleteResultFromMap(m map[string]any) (DeleteResult, error) {
	var r DeleteResult
	var err error
	if r.Message, err = optionalString(m, "message"); err != nil {
		return DeleteResult{}, err
	}
	if r.Unsubscribed, err = optionalStrings(m, "unsubscribed"); err != nil {
		return DeleteResult{}, err
	}
	if r.NotFound, err = optionalStrings(m, "not_found"); err != nil {
		return DeleteResult{}, err
	}
	return r, nil
}

// UpdateResult is the server response to a value or history write. Fields
// the server does not send stay zero; Raw keeps the full response.
type UpdateResult struct {
	ElementID string
	Success   bool
	Message   string
	Raw       map[string]any
}

// UpdateResultFromMap builds an UpdateResult for elementID.
func UpdateResultFromMap(elementID string, m map[string]any) (UpdateResult, error) {
	r := UpdateResult{ElementID: elementID, Raw: m, Success: true}
	var err error
	if id, err := optionalString(m, "elementId"); err != nil {
		return UpdateResult{}, err
	} else if id != "" {
		r.ElementID = id
	}
	if _, ok := m["success"]; ok {
		if r.Success, err = optionalBool(m, "success"); err != nil {
			return UpdateResult{}, err
		}
	}
	if r.Message, err = optionalString(m, "message"); err != nil {
		return UpdateResult{}, err
	}
	return r, nil
}
