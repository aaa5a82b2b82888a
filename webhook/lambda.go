package webhook

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-lambda-go/events"

	"hubhook/internal"
	"hubhook/pkg/hook"
)

const deliveryHeader = "x-github-delivery"

// LambdaHandler serves deliveries proxied by API Gateway.
type LambdaHandler struct {
	dispatcher *Dispatcher
}

// NewLambdaHandler creates a new LambdaHandler.
func NewLambdaHandler(dispatcher *Dispatcher) (*LambdaHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	return &LambdaHandler{dispatcher: dispatcher}, nil
}

// Handle answers one proxy event. Secret store failures are returned so the platform
// records the invocation as failed.
func (h *LambdaHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	internal.IncRequest("lambda")

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			internal.IncResponse(strconv.Itoa(hook.ResponseMalformedPayload.StatusCode))
			return proxyResponse(hook.ResponseMalformedPayload), nil
		}
		body = decoded
	}

	headers := proxyHeaders(req)
	reqID := headers[deliveryHeader]
	if reqID == "" {
		reqID = req.RequestContext.RequestID
	}
	if reqID == "" {
		reqID = watermill.NewUUID()
	}

	resp, err := h.dispatcher.Dispatch(ctx, reqID, hook.NewInboundEvent(body, headers))
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return proxyResponse(resp), nil
}

// proxyHeaders merges single and multi-value headers, single values winning.
func proxyHeaders(req events.APIGatewayProxyRequest) map[string]string {
	out := make(map[string]string, len(req.Headers)+len(req.MultiValueHeaders))
	for name, values := range req.MultiValueHeaders {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	for name, value := range req.Headers {
		out[strings.ToLower(name)] = value
	}
	return out
}

func proxyResponse(resp hook.Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       resp.Body,
	}
}
