package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/gateway/internal/middleware"
	"docchat/gateway/internal/upstream"
	"docchat/gateway/pkg/api"
)

type authMode int

const (
	// authBearer requires the session cookie and sends it as a bearer token.
	authBearer authMode = iota
	// authCookies forwards the browser's Cookie header untouched.
	authCookies
)

type bodyMode int

const (
	bodyNone bodyMode = iota
	bodyJSON
	bodyMultipart
)

type errorMode int

const (
	// errorRelay relays the backend error body; a non-JSON body is a failure.
	errorRelay errorMode = iota
	// errorRelayOrFallback relays JSON error bodies and otherwise answers
	// {detail: fallback}.
	errorRelayOrFallback
	// errorDetailOrFallback answers {detail} taken from the backend body, or
	// the fallback when there is none.
	errorDetailOrFallback
)

const metricsContentType = "text/plain; version=0.0.4; charset=utf-8"

type resourceRoute struct {
	method   string
	path     string
	backend  string
	auth     authMode
	body     bodyMode
	query    map[string]string
	errors   errorMode
	fallback string
	// okDetail replaces a successful backend body with {detail: okDetail}.
	okDetail string
	// okText relays a successful body as text with this content type.
	okText string
}

var resourceRoutes = []resourceRoute{
	{method: http.MethodGet, path: "/documents", backend: "/documents/", query: map[string]string{"limit": "20", "offset": "0"}},
	{method: http.MethodPost, path: "/query", backend: "/query/", body: bodyJSON},
	{method: http.MethodPost, path: "/upload_pdf", backend: "/upload_pdf/", body: bodyMultipart},
	{method: http.MethodPost, path: "/conversations/create", backend: "/conversations/", body: bodyJSON},
	{method: http.MethodDelete, path: "/conversations/:id", backend: "/conversations/{id}", okDetail: api.DetailConversationGone},
	{method: http.MethodGet, path: "/conversations/:id/messages", backend: "/conversations/{id}/messages", query: map[string]string{"limit": "50"}},
	{method: http.MethodDelete, path: "/conversations/:id/messages", backend: "/conversations/{id}/messages", okDetail: api.DetailMessageGone},
	{method: http.MethodGet, path: "/analytics/dashboard", backend: "/analytics/dashboard", query: map[string]string{"days": "7"}, errors: errorDetailOrFallback, fallback: "Failed to fetch analytics"},
	{method: http.MethodGet, path: "/analytics/trends", backend: "/analytics/trends", query: map[string]string{"days": "7"}, errors: errorDetailOrFallback, fallback: "Failed to fetch trends"},
	{method: http.MethodPost, path: "/user/profile", backend: "/user/profile", body: bodyJSON},
	{method: http.MethodGet, path: "/stats", backend: "/stats", auth: authCookies, errors: errorRelayOrFallback, fallback: "Stats fetch failed"},
	{method: http.MethodGet, path: "/health", backend: "/health", auth: authCookies, errors: errorRelayOrFallback, fallback: "Health check failed"},
	{method: http.MethodGet, path: "/providers/status", backend: "/providers/status", auth: authCookies, errors: errorRelayOrFallback, fallback: "Providers status fetch failed"},
	{method: http.MethodGet, path: "/metrics", backend: "/metrics", auth: authCookies, errors: errorRelayOrFallback, fallback: "Metrics fetch failed", okText: metricsContentType},
}

// forward builds the handler for one resource route. The gateway adds no
// semantics of its own beyond the route's error and success shaping.
func (h HandlerSet) forward(route resourceRoute) gin.HandlerFunc {
	return func(c *gin.Context) {
		call := upstream.Call{
			Method: route.method,
			Path:   strings.ReplaceAll(route.backend, "{id}", url.PathEscape(c.Param("id"))),
		}

		if len(route.query) > 0 {
			call.Query = url.Values{}
			for key, def := range route.query {
				call.Query.Set(key, c.DefaultQuery(key, def))
			}
		}

		switch route.auth {
		case authBearer:
			call.BearerToken = middleware.SessionToken(c)
		case authCookies:
			call.Cookie = c.GetHeader("Cookie")
		}

		switch route.body {
		case bodyJSON:
			body, ok := h.readJSON(c)
			if !ok {
				return
			}
			call.Body = body
			call.ContentType = jsonBody
		case bodyMultipart:
			body, contentType, ok := h.readUpload(c)
			if !ok {
				return
			}
			call.Body = body
			call.ContentType = contentType
		}

		resp, ok := h.call(c, call)
		if !ok {
			return
		}

		if !resp.OK() {
			h.relayError(c, route, resp)
			return
		}

		switch {
		case route.okText != "":
			c.Data(http.StatusOK, route.okText, resp.Body)
		case route.okDetail != "":
			c.JSON(http.StatusOK, api.ErrorResponse{Detail: route.okDetail})
		default:
			h.relay(c, http.StatusOK, resp)
		}
	}
}

func (h HandlerSet) relayError(c *gin.Context, route resourceRoute, resp upstream.Response) {
	switch route.errors {
	case errorRelayOrFallback:
		if resp.IsJSON() {
			c.Data(resp.Status, jsonContentType, resp.Body)
			return
		}
		c.JSON(resp.Status, api.ErrorResponse{Detail: route.fallback})
	case errorDetailOrFallback:
		detail := route.fallback
		var body api.ErrorResponse
		if err := resp.Decode(&body); err == nil && body.Detail != "" {
			detail = body.Detail
		}
		c.JSON(resp.Status, api.ErrorResponse{Detail: detail})
	default:
		h.relay(c, resp.Status, resp)
	}
}

var errNoFilePart = errors.New("multipart body has no file part")

// readUpload returns the multipart body unchanged, boundary included, after
// checking that it carries a "file" part.
func (h HandlerSet) readUpload(c *gin.Context) ([]byte, string, bool) {
	contentType := c.GetHeader("Content-Type")
	body, err := c.GetRawData()
	if err == nil {
		err = hasFilePart(contentType, body)
	}

	switch {
	case err == nil:
		return body, contentType, true
	case errors.Is(err, errNoFilePart):
		c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorResponse{Detail: api.DetailFileRequired})
	default:
		h.log.Warn().
			Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("unreadable upload body")
		h.fail(c)
	}
	return nil, "", false
}

func hasFilePart(contentType string, body []byte) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return err
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return errors.New("not a multipart form")
	}

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return errNoFilePart
		}
		if err != nil {
			return err
		}
		name := part.FormName()
		_ = part.Close()
		if name == "file" {
			return nil
		}
	}
}
