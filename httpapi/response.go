package httpapi

import "github.com/korylprince/redbox-chat/api"

//ListSessionsResponse contains a list of ChatSessions
type ListSessionsResponse struct {
	Sessions []*api.ChatSession `json:"sessions"`
}
