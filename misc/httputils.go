package misc

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
)

func HttpInvokeJson(method, url string, headers http.Header, reqBody string) (string, error) {
	req, err := http.NewRequest(method, url, strings.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	for name, values := range headers {
		req.Header.Del(name)
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", &ErrHttpInvoke{Method: method, Url: url, Cause: err}
	}

	defer resp.Body.Close()
	respBodyBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", &ErrHttpInvoke{Method: method, Url: url, StatusCode: resp.StatusCode, Cause: err}
	}
	respBody := string(respBodyBytes)
	if !HttpStatusIsSuccess(resp.StatusCode) {
		return "", &ErrHttpInvoke{Method: method, Url: url, StatusCode: resp.StatusCode, RespBody: respBody}
	}

	return respBody, nil
}

func HttpStatusIsSuccess(status int) bool {
	return status >= 200 && status < 300
}

type ErrHttpInvoke struct {
	Method string
	Url    string

	StatusCode int
	RespBody   string

	Cause error
}

func (e *ErrHttpInvoke) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Url, e.Cause)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Url, e.StatusCode, e.RespBody)
}

func (e *ErrHttpInvoke) Unwrap() error {
	return e.Cause
}
