package model

// Column describes one column of the source CSV that submissions read.
type Column struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
