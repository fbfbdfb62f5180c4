package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/korylprince/redbox-chat/api"
)

//GET /chat/
func handleListSessions(w http.ResponseWriter, r *http.Request) *handlerResponse {
	sessions, err := api.ListSessions(r.Context())
	if resp := checkAPIError(err); resp != nil {
		return resp
	}

	return &handlerResponse{Code: http.StatusOK, Body: &ListSessionsResponse{Sessions: sessions}}
}

//GET /chat/:id
func handleReadSession(w http.ResponseWriter, r *http.Request) *handlerResponse {
	id := mux.Vars(r)["id"]

	session, err := api.ReadSession(r.Context(), id, true)
	if resp := checkAPIError(err); resp != nil {
		return resp
	}
	if session == nil {
		return handleError(http.StatusNotFound, errors.New("Could not find session"))
	}

	return &handlerResponse{Code: http.StatusOK, Body: session}
}

//POST /chat/:id/title/
func handleRenameSession(titleLength int) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		id := mux.Vars(r)["id"]

		var req *RenameSessionRequest
		d := json.NewDecoder(r.Body)

		err := d.Decode(&req)
		if err != nil || req == nil {
			return handleError(http.StatusBadRequest, fmt.Errorf("Could not decode JSON: %v", err))
		}

		err = api.UpdateSessionName(r.Context(), id, strings.TrimSpace(req.Name), titleLength)
		if resp := checkAPIError(err); resp != nil {
			return resp
		}

		session, err := api.ReadSession(r.Context(), id, false)
		if resp := checkAPIError(err); resp != nil {
			return resp
		}
		if session == nil {
			return handleError(http.StatusInternalServerError, errors.New("Could not find session, but just updated"))
		}

		return &handlerResponse{Code: http.StatusOK, Body: session}
	}
}
