package common

// ErrorBody is the wire shape of every failed response.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}
