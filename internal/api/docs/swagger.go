package docs

import (
	"fmt"

	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"

	"github.com/pulsar-labs/pulse/internal/domain"
)

// ErrorResponse is the code/message object the error handler nests
// under the "error" key of the response body.
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// WelcomeResponse is the root metadata document.
type WelcomeResponse struct {
	App         string `json:"app" example:"pulse"`
	Version     string `json:"version" example:"0.1.0"`
	Environment string `json:"environment" example:"development"`
	Docs        string `json:"docs" example:"/swagger/index.html"`
	Health      string `json:"health" example:"/health"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version" example:"0.1.0"`
}

// TaskAcceptedResponse acknowledges an enqueued background task.
type TaskAcceptedResponse struct {
	TaskID string `json:"task_id" example:"a3f1c2d4-5e6b-4a7c-8d9e-0f1a2b3c4d5e"`
	Status string `json:"status" example:"pending"`
}

// TaskCancelledResponse acknowledges a cancelled task.
type TaskCancelledResponse struct {
	TaskID string `json:"task_id" example:"a3f1c2d4-5e6b-4a7c-8d9e-0f1a2b3c4d5e"`
	Status string `json:"status" example:"cancelled"`
}

// FabricStatsResponse is the channel fabric census.
type FabricStatsResponse struct {
	TotalChannels    int            `json:"total_channels" example:"4"`
	Channels         map[string]int `json:"channels"`
	TotalConnections int            `json:"total_connections" example:"12"`
}

// EventCatalogResponse lists the registered webhook event types.
type EventCatalogResponse struct {
	Events []string `json:"events"`
}

// FilterRequest is the structured query accepted by the filter endpoints.
type FilterRequest struct {
	Conditions     []map[string]interface{} `json:"conditions"`
	Operator       string                   `json:"operator" example:"and"`
	OrderBy        string                   `json:"order_by" example:"id"`
	OrderDirection string                   `json:"order_direction" example:"asc"`
	Limit          int                      `json:"limit" example:"100"`
	Offset         int                      `json:"offset" example:"0"`
}

// FilterPage is the paginated filter result.
type FilterPage struct {
	Data    []map[string]interface{} `json:"data"`
	Total   int64                    `json:"total" example:"240"`
	Limit   int                      `json:"limit" example:"100"`
	Offset  int                      `json:"offset" example:"0"`
	HasMore bool                     `json:"has_more" example:"true"`
}

// ProcessMediaRequest enqueues thumbnail processing for one media row.
type ProcessMediaRequest struct {
	MediaID        int64  `json:"media_id" example:"42"`
	IdempotencyKey string `json:"idempotency_key" example:"media-42-v1"`
}

// SendEmailRequest enqueues a single outbound email.
type SendEmailRequest struct {
	To             string `json:"to" example:"someone@example.com"`
	Subject        string `json:"subject" example:"Welcome"`
	Body           string `json:"body" example:"Hello there"`
	IdempotencyKey string `json:"idempotency_key" example:"welcome-42"`
}

// SendBulkEmailRequest enqueues a throttled bulk send.
type SendBulkEmailRequest struct {
	Recipients     []string `json:"recipients"`
	Subject        string   `json:"subject" example:"Release notes"`
	Body           string   `json:"body" example:"What changed this week"`
	IdempotencyKey string   `json:"idempotency_key" example:"release-2024-31"`
}

// WebhookTestRequest fires a one-shot test.ping delivery.
type WebhookTestRequest struct {
	URL     string            `json:"url" example:"https://example.com/hooks"`
	Secret  string            `json:"secret" example:"whsec_abc123"`
	Headers map[string]string `json:"headers"`
	Timeout int               `json:"timeout" example:"10"`
}

// WebhookTestResponse is the outcome of a test delivery.
type WebhookTestResponse struct {
	Success      bool   `json:"success" example:"true"`
	StatusCode   int    `json:"status_code" example:"200"`
	ResponseBody string `json:"response_body" example:"ok"`
	DurationMs   int64  `json:"duration_ms" example:"183"`
	ErrorMessage string `json:"error_message,omitempty"`
}

var (
	errBadRequest = response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request")
	errNotFound   = response.New(ErrorResponse{Code: "NOT_FOUND", Message: "Resource not found"}, "404", "Not Found")
	errValidation = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	errRateLimit  = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests")
	errInternal   = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
)

func NewSwagger(appName string) *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       appName + " API",
		Version:     "v0.1.0",
		Description: "Real-time CRUD application server: resource engine, WebSocket channels, background jobs, webhooks and rate limiting",
		Host:        "localhost:8000",
		Path:        "/",
	})

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.GET,
			"/",
			endpoint.WithTags("System"),
			endpoint.WithSummary("Welcome metadata"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(WelcomeResponse{}, "200", "Service metadata"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("System"),
			endpoint.WithSummary("Liveness check"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is alive"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/ws/stats",
			endpoint.WithTags("WebSocket"),
			endpoint.WithSummary("Channel fabric statistics"),
			endpoint.WithDescription("Connection counts per channel. Clients connect at ws://host/ws/{channel}?client_id=..."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FabricStatsResponse{}, "200", "Fabric census"),
			}),
		),

		// Webhooks
		endpoint.New(
			endpoint.GET,
			"/webhooks/events",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("List registered event types"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EventCatalogResponse{}, "200", "Event catalog"),
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/webhooks/subscriptions",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Create a webhook subscription"),
			endpoint.WithDescription("Registers a delivery target for a set of catalog events. The signing secret is returned once, on creation."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(domain.WebhookSubscriptionInput{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(domain.WebhookSubscription{}, "201", "Subscription created"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/webhooks/subscriptions",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("List webhook subscriptions"),
			endpoint.WithParams(
				parameter.BoolParam("active_only", parameter.Query, parameter.WithDescription("Only return active subscriptions")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default 100)")),
				parameter.IntParam("offset", parameter.Query, parameter.WithDescription("Rows to skip")),
			),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New([]domain.WebhookSubscription{}, "200", "Subscriptions"),
			}),
		),

		endpoint.New(
			endpoint.PATCH,
			"/webhooks/subscriptions/{id}",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Update a webhook subscription"),
			endpoint.WithParams(parameter.IntParam("id", parameter.Path, parameter.WithDescription("Subscription ID"))),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(domain.WebhookSubscriptionUpdate{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(domain.WebhookSubscription{}, "200", "Subscription updated"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.DELETE,
			"/webhooks/subscriptions/{id}",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Delete a webhook subscription"),
			endpoint.WithParams(parameter.IntParam("id", parameter.Path, parameter.WithDescription("Subscription ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(struct{}{}, "204", "Subscription deleted"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/webhooks/subscriptions/{id}/stats",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Subscription delivery counters"),
			endpoint.WithParams(parameter.IntParam("id", parameter.Path, parameter.WithDescription("Subscription ID"))),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(domain.WebhookSubscriptionStats{}, "200", "Aggregate counters"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/webhooks/deliveries",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Delivery history"),
			endpoint.WithParams(
				parameter.IntParam("subscription_id", parameter.Query, parameter.WithDescription("Filter by subscription")),
				parameter.StrParam("event_type", parameter.Query, parameter.WithDescription("Filter by event type")),
				parameter.BoolParam("success", parameter.Query, parameter.WithDescription("Filter by outcome")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default 100)")),
			),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New([]domain.WebhookDelivery{}, "200", "Delivery records, newest first"),
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/webhooks/test",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Fire a one-shot test delivery"),
			endpoint.WithDescription("Sends a signed test.ping payload to the given URL without creating a subscription"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(WebhookTestRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(WebhookTestResponse{}, "200", "Delivery outcome"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errInternal}),
		),

		// Background tasks
		endpoint.New(
			endpoint.POST,
			"/tasks/media/process",
			endpoint.WithTags("Tasks"),
			endpoint.WithSummary("Enqueue media processing"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(ProcessMediaRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TaskAcceptedResponse{}, "202", "Task accepted"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errNotFound, errValidation, errRateLimit, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/tasks/email/send",
			endpoint.WithTags("Tasks"),
			endpoint.WithSummary("Enqueue a single email"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(SendEmailRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TaskAcceptedResponse{}, "202", "Task accepted"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errRateLimit, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/tasks/email/bulk",
			endpoint.WithTags("Tasks"),
			endpoint.WithSummary("Enqueue a bulk email send"),
			endpoint.WithDescription("Recipients are worked through a per-sender throttle; progress is streamed over the tasks channel"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(SendBulkEmailRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TaskAcceptedResponse{}, "202", "Task accepted"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errRateLimit, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/tasks/{id}/status",
			endpoint.WithTags("Tasks"),
			endpoint.WithSummary("Poll task status"),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Task ID"))),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(domain.Task{}, "200", "Task state"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		endpoint.New(
			endpoint.DELETE,
			"/tasks/{id}",
			endpoint.WithTags("Tasks"),
			endpoint.WithSummary("Cancel a queued task"),
			endpoint.WithDescription("Only tasks still waiting in the queue can be cancelled; in-flight tasks return 409"),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Task ID"))),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TaskCancelledResponse{}, "200", "Task cancelled"),
			}),
			endpoint.WithErrors([]response.Response{
				errNotFound,
				response.New(ErrorResponse{Code: "TASK_NOT_CANCELLABLE", Message: "Task already picked up by a worker and cannot be cancelled"}, "409", "Conflict"),
				errInternal,
			}),
		),
	}

	endpoints = append(endpoints, kindEndpoints("users", domain.UserOutput{}, domain.UserInput{}, domain.UserUpdate{})...)
	endpoints = append(endpoints, kindEndpoints("posts", domain.PostOutput{}, domain.PostInput{}, domain.PostUpdate{})...)
	endpoints = append(endpoints, kindEndpoints("media", domain.MediaOutput{}, domain.MediaInput{}, domain.MediaUpdate{})...)

	sw.AddEndpoints(endpoints)
	return sw
}

// kindEndpoints describes the uniform CRUD + filter surface every
// registered kind exposes.
func kindEndpoints(kind string, output, input, update interface{}) []*endpoint.EndPoint {
	return []*endpoint.EndPoint{
		endpoint.New(
			endpoint.GET,
			fmt.Sprintf("/%s/", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("List %s", kind)),
			endpoint.WithParams(
				parameter.IntParam("skip", parameter.Query, parameter.WithDescription("Rows to skip")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (max 1000)")),
			),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(output, "200", "Listing"),
			}),
			endpoint.WithErrors([]response.Response{errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			fmt.Sprintf("/%s/", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("Create a %s row", kind)),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(input),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(output, "201", "Created"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			fmt.Sprintf("/%s/{id}", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("Fetch one %s row", kind)),
			endpoint.WithParams(parameter.IntParam("id", parameter.Path, parameter.WithDescription("Row ID"))),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(output, "200", "Row"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		endpoint.New(
			endpoint.PATCH,
			fmt.Sprintf("/%s/{id}", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("Partially update a %s row", kind)),
			endpoint.WithParams(parameter.IntParam("id", parameter.Path, parameter.WithDescription("Row ID"))),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(update),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(output, "200", "Updated"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.DELETE,
			fmt.Sprintf("/%s/{id}", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("Delete a %s row", kind)),
			endpoint.WithParams(parameter.IntParam("id", parameter.Path, parameter.WithDescription("Row ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(struct{}{}, "204", "Deleted"),
			}),
			endpoint.WithErrors([]response.Response{errNotFound, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			fmt.Sprintf("/%s/filter", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("Filter %s", kind)),
			endpoint.WithDescription("Recursive condition groups with and/or operators, ordering and pagination"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FilterRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(output, "200", "Matching rows"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			fmt.Sprintf("/%s/filter/paginated", kind),
			endpoint.WithTags(kind),
			endpoint.WithSummary(fmt.Sprintf("Filter %s with pagination metadata", kind)),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FilterRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FilterPage{}, "200", "Page with totals"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errValidation, errInternal}),
		),
	}
}
