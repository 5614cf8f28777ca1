package httpx

import "net/http"

// Client is satisfied by *http.Client and by the fasthttp adapter.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}
