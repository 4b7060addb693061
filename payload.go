package vmedia

// Notification is sent to result consumers once an install run is finished.
type Notification struct {
	Host   string `json:"host"`
	Target Target `json:"target"`
	Result Result `json:"result"`
}
