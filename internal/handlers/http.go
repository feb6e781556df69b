package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

const maxBodyBytes = 5 << 20

// ServeHTTP adapts the Router to net/http for running outside Lambda.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		status, msg := http.StatusBadRequest, "unreadable request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status, msg = http.StatusRequestEntityTooLarge, "request body too large"
		}
		resp, _ := errResp(status, msg)
		writeResp(w, resp)
		return
	}

	headers := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ",")
	}

	ev := events.APIGatewayV2HTTPRequest{
		RawPath:        req.URL.Path,
		RawQueryString: req.URL.RawQuery,
		Headers:        headers,
		Body:           string(body),
	}
	ev.RequestContext.HTTP.Method = req.Method
	ev.RequestContext.HTTP.Path = req.URL.Path
	ev.RequestContext.HTTP.SourceIP = req.RemoteAddr

	resp, err := r.Handle(req.Context(), ev)
	if err != nil {
		r.logger.Error("handle request", zap.String("path", req.URL.Path), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeResp(w, resp)
}

func writeResp(w http.ResponseWriter, resp events.APIGatewayV2HTTPResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
