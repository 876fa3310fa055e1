package polygon

// Provider-shaped response payloads. These never escape this package; the
// client normalizes them into pkg/models types on read.

type snapshotResponse struct {
	Status string `json:"status"`
	Ticker struct {
		Ticker           string  `json:"ticker"`
		TodaysChange     float64 `json:"todaysChange"`
		TodaysChangePerc float64 `json:"todaysChangePerc"`
		Updated          int64   `json:"updated"` // unix nanos
		Day              struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
			VWAP   float64 `json:"vw"`
		} `json:"day"`
		LastTrade struct {
			Price float64 `json:"p"`
		} `json:"lastTrade"`
		PrevDay struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
			VWAP   float64 `json:"vw"`
		} `json:"prevDay"`
	} `json:"ticker"`
}

type aggsResponse struct {
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		VWAP      float64 `json:"vw"`
		Timestamp int64   `json:"t"` // unix millis
	} `json:"results"`
}

type indicatorResponse struct {
	Status  string `json:"status"`
	Results struct {
		Values []struct {
			Timestamp int64   `json:"timestamp"`
			Value     float64 `json:"value"`
		} `json:"values"`
	} `json:"results"`
}

type optionsSnapshotResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Details struct {
			Ticker         string  `json:"ticker"`
			StrikePrice    float64 `json:"strike_price"`
			ExpirationDate string  `json:"expiration_date"`
			ContractType   string  `json:"contract_type"`
		} `json:"details"`
		Day struct {
			Close  float64 `json:"close"`
			Volume float64 `json:"volume"`
		} `json:"day"`
		OpenInterest      float64 `json:"open_interest"`
		ImpliedVolatility float64 `json:"implied_volatility"`
		Greeks            struct {
			Delta float64 `json:"delta"`
		} `json:"greeks"`
	} `json:"results"`
}
