package controllers

import (
	"net/http"

	messagesvc "github.com/rzbill/courier/internal/services/messages"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general  *GeneralController
	messages *MessagesController
}

// NewControllerRegistry creates the controllers over svc.
func NewControllerRegistry(svc *messagesvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(svc),
		messages: NewMessagesController(svc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.messages.RegisterRoutes(mux)
}
