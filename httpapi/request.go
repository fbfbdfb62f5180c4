package httpapi

//RenameSessionRequest is a request to set a session's title
type RenameSessionRequest struct {
	Name string `json:"name"`
}
