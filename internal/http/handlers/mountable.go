package handlers

import "github.com/go-chi/chi/v5"

// Mountable is implemented by feature handlers that mount their own routes.
type Mountable interface {
	Mount(r chi.Router)
}
