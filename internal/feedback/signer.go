package feedback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// signaturePayload is the exact byte string the HMAC covers. Any change here
// invalidates all outstanding feedback links.
func signaturePayload(queueID int64, sentimentID string, expiry int64) string {
	return strconv.FormatInt(queueID, 10) + "|" + sentimentID + "|" + strconv.FormatInt(expiry, 10)
}

// Sign computes the hex HMAC-SHA256 over (queue_id, sentiment_id, expiry).
func Sign(secret string, queueID int64, sentimentID string, expiry int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signaturePayload(queueID, sentimentID, expiry)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig in constant time and rejects expired links before any
// database lookup.
func Verify(secret string, queueID int64, sentimentID string, expiry int64, sig string, now time.Time) bool {
	if now.Unix() > expiry {
		return false
	}
	expected := Sign(secret, queueID, sentimentID, expiry)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// SignedURL builds the feedback callback link embedded in alerts.
func SignedURL(baseURL, secret string, queueID int64, sentimentID string, expiry time.Time) string {
	exp := expiry.Unix()
	q := url.Values{}
	q.Set("queue_id", strconv.FormatInt(queueID, 10))
	q.Set("sentiment_id", sentimentID)
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", Sign(secret, queueID, sentimentID, exp))

	joiner := "?"
	if len(baseURL) > 0 && containsQuery(baseURL) {
		joiner = "&"
	}
	return fmt.Sprintf("%s%s%s", baseURL, joiner, q.Encode())
}

func containsQuery(u string) bool {
	for i := 0; i < len(u); i++ {
		if u[i] == '?' {
			return true
		}
	}
	return false
}
