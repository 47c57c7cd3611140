package heartbeat

const (
	// CounterName is the counter carried by every heartbeat record
	CounterName = "WLIHeartbeat"
	// CounterValue is the fixed value of the heartbeat counter
	CounterValue = 1
)

// Record is a single heartbeat telemetry record
type Record struct {
	DataType  string     `json:"DataType"`
	IPName    string     `json:"IPName"`
	DataItems []DataItem `json:"DataItems"`
}

// DataItem is one unit of heartbeat payload
type DataItem struct {
	Timestamp   string          `json:"Timestamp"`
	Collections []CounterSample `json:"Collections"`
	Computer    string          `json:"Computer"`
}

// CounterSample is a named counter observation
type CounterSample struct {
	CounterName string `json:"CounterName"`
	Value       int    `json:"Value"`
}
