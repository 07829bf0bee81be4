package polygon

// ContractsResponse is the paginated reply of the contracts reference
// endpoint.
type ContractsResponse struct {
	Status    string     `json:"status"`
	RequestID string     `json:"request_id"`
	Results   []Contract `json:"results"`
	NextURL   string     `json:"next_url"`
}

// Contract is one option contract definition as the vendor reports it.
type Contract struct {
	Ticker            string  `json:"ticker"`
	UnderlyingTicker  string  `json:"underlying_ticker"`
	ContractType      string  `json:"contract_type"`
	ExerciseStyle     string  `json:"exercise_style"`
	ExpirationDate    string  `json:"expiration_date"` // YYYY-MM-DD
	SharesPerContract int     `json:"shares_per_contract"`
	StrikePrice       float64 `json:"strike_price"`
	PrimaryExchange   string  `json:"primary_exchange"`
	CFI               string  `json:"cfi"`
}

// TradesResponse is the paginated reply of the tick-level trades endpoint.
type TradesResponse struct {
	Status    string  `json:"status"`
	RequestID string  `json:"request_id"`
	NextURL   string  `json:"next_url"`
	Results   []Trade `json:"results"`
}

// Trade is a single tick-level option trade record.
type Trade struct {
	Conditions           []int   `json:"conditions"`
	Correction           int     `json:"correction"`
	Exchange             int     `json:"exchange"`
	Tape                 int     `json:"tape"`
	ParticipantTimestamp int64   `json:"participant_timestamp"`
	Price                float64 `json:"price"`
	SequenceNumber       int64   `json:"sequence_number"`
	SipTimestamp         int64   `json:"sip_timestamp"` // nanoseconds
	Size                 float64 `json:"size"`
}

// QuotesResponse is the paginated reply of the tick-level NBBO quotes
// endpoint.
type QuotesResponse struct {
	Status    string  `json:"status"`
	RequestID string  `json:"request_id"`
	NextURL   string  `json:"next_url"`
	Results   []Quote `json:"results"`
}

// Quote is a single tick-level NBBO quote record.
type Quote struct {
	AskExchange    int     `json:"ask_exchange"`
	AskPrice       float64 `json:"ask_price"`
	AskSize        float64 `json:"ask_size"`
	BidExchange    int     `json:"bid_exchange"`
	BidPrice       float64 `json:"bid_price"`
	BidSize        float64 `json:"bid_size"`
	SequenceNumber int64   `json:"sequence_number"`
	SipTimestamp   int64   `json:"sip_timestamp"` // nanoseconds
}
