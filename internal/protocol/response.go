package protocol

// Greeting is written to every client on connect.
const Greeting = "Welcome to KVStore Server"

// Fixed single-line responses.
const (
	RespOK       = "OK"
	RespNotFound = "NOT_FOUND"
	RespDeleted  = "DELETED"
)

// Value formats a successful GET response.
func Value(v string) string {
	return "VALUE " + v
}

// Error formats a failure response.
func Error(reason string) string {
	return "ERR " + reason
}
