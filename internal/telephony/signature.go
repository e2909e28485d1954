package telephony

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"
)

// paramsKey is where the parsed Twilio form parameters live on the echo context.
const paramsKey = "twilioParams"

// TwilioAuth parses Twilio webhook form parameters into the context and, when
// authToken is set, rejects requests whose X-Twilio-Signature does not match.
// baseURL, when set, replaces the request host when rebuilding the signed URL.
func TwilioAuth(authToken, baseURL string) echo.MiddlewareFunc {
	validator := client.NewRequestValidator(authToken)
	if authToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhook signatures are not checked")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/twilio/") {
				return next(c)
			}

			params := make(map[string]string)
			if c.Request().Method == http.MethodPost {
				bodyBytes, err := io.ReadAll(c.Request().Body)
				if err != nil {
					return c.String(http.StatusBadRequest, "Failed to read request body")
				}
				formData, err := url.ParseQuery(string(bodyBytes))
				if err != nil {
					return c.String(http.StatusBadRequest, "Failed to parse form data")
				}
				for key, values := range formData {
					if len(values) > 0 {
						params[key] = values[0]
					}
				}
			}

			if authToken != "" {
				signature := c.Request().Header.Get("X-Twilio-Signature")
				requestURL := absoluteURL(c.Request(), baseURL, c.Request().URL.RequestURI())
				if strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket") {
					requestURL = websocketURL(requestURL)
				}
				if signature == "" || !validator.Validate(requestURL, params, signature) {
					log.Printf("Warning: rejected unsigned twilio request to %s", c.Request().URL.Path)
					return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
				}
			}

			c.Set(paramsKey, params)
			return next(c)
		}
	}
}

// absoluteURL builds the public URL for path.
// Priority: configured base URL > X-Forwarded-* headers > request Host heuristic.
func absoluteURL(r *http.Request, baseURL, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + path
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	host := r.Header.Get("X-Forwarded-Host")
	if proto != "" && host != "" {
		return proto + "://" + host + path
	}
	host = r.Host
	proto = "https"
	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		proto = "http"
	}
	return proto + "://" + host + path
}

// websocketURL turns an absolute http(s) URL into its ws(s) form.
func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
