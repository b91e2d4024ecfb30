package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"campaign-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

const twilioSignatureHeader = "X-Twilio-Signature"

var ErrSignature = errors.New("webhooks: invalid request signature")

// TwilioSignature computes Twilio's request signature: base64(HMAC-SHA1(token,
// url + each POST param name and value in name order)).
// Ref: https://www.twilio.com/docs/usage/security#validating-requests
func TwilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyTwilioSignature returns ErrSignature when sig does not match.
func VerifyTwilioSignature(authToken, fullURL string, params url.Values, sig string) error {
	if authToken == "" || sig == "" {
		return ErrSignature
	}
	want := TwilioSignature(authToken, fullURL, params)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrSignature
	}
	return nil
}

// RequireTwilioSignature rejects requests whose X-Twilio-Signature does not
// verify, before any handler runs. publicBaseURL is the externally visible
// scheme and host Twilio was given; when empty the request's own host is used.
func RequireTwilioSignature(authToken, publicBaseURL string) gin.HandlerFunc {
	publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		fullURL := requestURL(c.Request, publicBaseURL)
		if err := VerifyTwilioSignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(twilioSignatureHeader)); err != nil {
			logger.FromGin(c).Warn("twilio signature rejected", "url", fullURL)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

func requestURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return publicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
