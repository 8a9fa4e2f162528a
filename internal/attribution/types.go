package attribution

// Conversions API wire types.

type eventsRequest struct {
	Data          []serverEvent `json:"data"`
	AccessToken   string        `json:"access_token"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

type serverEvent struct {
	EventName      string     `json:"event_name"`
	EventTime      int64      `json:"event_time"`
	EventID        string     `json:"event_id"`
	ActionSource   string     `json:"action_source"`
	EventSourceURL string     `json:"event_source_url,omitempty"`
	UserData       userData   `json:"user_data"`
	CustomData     customData `json:"custom_data"`
}

// userData carries hashed identifiers. Client IP, user agent and the browser
// cookies are sent unhashed as the API requires.
type userData struct {
	Email           []string `json:"em,omitempty"`
	Phone           []string `json:"ph,omitempty"`
	FirstName       []string `json:"fn,omitempty"`
	LastName        []string `json:"ln,omitempty"`
	City            []string `json:"ct,omitempty"`
	Zip             []string `json:"zp,omitempty"`
	Country         []string `json:"country,omitempty"`
	ExternalID      []string `json:"external_id,omitempty"`
	ClientIP        string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
	FBC             string   `json:"fbc,omitempty"`
}

type customData struct {
	Value       float64   `json:"value"`
	Currency    string    `json:"currency"`
	ContentIDs  []string  `json:"content_ids,omitempty"`
	Contents    []content `json:"contents,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	NumItems    int64     `json:"num_items,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMMedium   string    `json:"utm_medium,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
	UTMContent  string    `json:"utm_content,omitempty"`
	UTMTerm     string    `json:"utm_term,omitempty"`
}

type content struct {
	ID        string  `json:"id"`
	Quantity  int64   `json:"quantity"`
	ItemPrice float64 `json:"item_price"`
}

type eventsResponse struct {
	EventsReceived int      `json:"events_received"`
	Messages       []string `json:"messages,omitempty"`
	FBTraceID      string   `json:"fbtrace_id"`
	Error          *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error,omitempty"`
}
