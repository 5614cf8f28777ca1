package mocks

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stretchr/testify/mock"
)

type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, ok := args.Get(0).(*http.Response)
	if !ok && args.Get(0) != nil {
		return nil, fmt.Errorf("expected *http.Response, got %T", args.Get(0))
	}
	return resp, args.Error(1)
}

// OnPost expects a POST whose URL path ends with pathSuffix and answers it
// with a JSON body.
func (m *MockHTTPClient) OnPost(pathSuffix string, status int, body string) *mock.Call {
	return m.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, pathSuffix)
	})).Return(JSONResponse(status, body), nil)
}

func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
