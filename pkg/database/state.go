package database

// StoreState tells read-path callers why a result may be empty.
type StoreState string

const (
	StateOK           StoreState = "ok"
	StateUnavailable  StoreState = "unavailable"
	StateUnconfigured StoreState = "unconfigured"
)

// StoreStateHeader is the response header list endpoints use to report StoreState.
const StoreStateHeader = "X-Store-Status"
