package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/pkg/middleware/requestid"
)

// Keys of the envelope meta object.
const (
	MetaCacheHit       = "cache_hit"
	MetaProcessingTime = "processing_time_ms"
	MetaRequestID      = "request_id"
)

const responseMetaKey = "response_meta"

// ResponseMeta is the per-request meta object merged into JSON envelopes.
type ResponseMeta map[string]interface{}

// WithResponseMeta attaches a meta object to every request, stamped with the
// request id and, once the handler returns, the processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := ResponseMeta{}
		if id := requestid.Value(c); id != "" {
			meta[MetaRequestID] = id
		}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, exists := meta[MetaProcessingTime]; !exists {
			meta[MetaProcessingTime] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether analytics or dashboard data came from Redis.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[MetaCacheHit] = hit
}

// ExtractMeta returns the meta object stored on the context, or nil.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, ok := lookupMeta(c); ok {
		return meta
	}
	return nil
}

func lookupMeta(c *gin.Context) (ResponseMeta, bool) {
	v, exists := c.Get(responseMetaKey)
	if !exists {
		return nil, false
	}
	meta, ok := v.(ResponseMeta)
	return meta, ok
}

func ensureMeta(c *gin.Context) ResponseMeta {
	if c == nil {
		return ResponseMeta{}
	}
	if meta, ok := lookupMeta(c); ok {
		return meta
	}
	meta := ResponseMeta{}
	c.Set(responseMetaKey, meta)
	return meta
}
