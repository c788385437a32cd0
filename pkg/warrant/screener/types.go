package screener

// Wire types for the warrant screener API. Numbers arrive as strings to avoid
// precision loss; parsing and validation happen at the client boundary so the
// rest of the system only ever sees validated warrant.Candidate values.

// screenResponse is the top-level screen payload.
type screenResponse struct {
	Underlying string      `json:"underlying"`
	AsOf       int64       `json:"asOf"`
	Items      []screenRow `json:"items"`
}

// screenRow is one screened instrument as transmitted.
type screenRow struct {
	Symbol      string `json:"symbol"`
	Direction   string `json:"direction"` // "bull" or "bear"
	CallPrice   string `json:"callPrice"`
	DistancePct string `json:"distancePct"`
	Turnover    string `json:"turnover"`
	LotSize     int64  `json:"lotSize"`
}
