package idem

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/xerrors"
)

// HeaderReplayed 重放缓存响应时附加的响应头
const HeaderReplayed = "X-Idempotency-Replayed"

// GinMiddleware 创建 Gin 幂等性中间件
//
// 后续处理链作为 work 执行，2xx 响应被缓存并在重复请求时原样重放。
// 非 2xx 响应不缓存，锁保留到过期为止。
//
// 使用示例:
//
//	r := gin.Default()
//	r.POST("/orders", idem.GinMiddleware(), func(c *gin.Context) {
//	    c.JSON(201, gin.H{"order_id": "123"})
//	})
func (c *coordinator) GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc {
	opt := middlewareOptions{
		headerKey: "X-Idempotency-Key",
	}
	for _, o := range opts {
		o(&opt)
	}

	return func(gc *gin.Context) {
		key := gc.GetHeader(opt.headerKey)
		if key == "" {
			if opt.requireKey {
				gc.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": ErrMissingKey.Error()})
				return
			}
			gc.Next()
			return
		}

		executed := false
		res, err := c.Perform(gc.Request.Context(), key, func(ctx context.Context) (WorkResult, error) {
			executed = true
			return c.serveAndCapture(ctx, gc), nil
		})

		if executed {
			// 响应已由处理链写出，只处理 panic 等未写出的情况
			if err != nil && !gc.Writer.Written() {
				gc.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		if err != nil {
			gc.AbortWithStatusJSON(httpStatusOf(err), gin.H{"error": err.Error()})
			return
		}

		if err := replayHTTPResponse(gc, res); err != nil {
			c.logger.ErrorContext(gc.Request.Context(), "failed to replay cached HTTP response",
				clog.String("key", key), clog.Error(err))
			gc.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		gc.Abort()
	}
}

// serveAndCapture 执行后续处理链并捕获响应
func (c *coordinator) serveAndCapture(ctx context.Context, gc *gin.Context) *cachedHTTPResponse {
	origReq := gc.Request
	origWriter := gc.Writer
	writer := &responseWriter{
		ResponseWriter: origWriter,
		body:           bytes.NewBuffer(nil),
	}
	gc.Request = origReq.WithContext(ctx)
	gc.Writer = writer
	defer func() {
		gc.Writer = origWriter
		gc.Request = origReq
	}()

	gc.Next()

	resp := &cachedHTTPResponse{
		Status: writer.Status(),
		Header: cloneHeader(writer.Header()),
		Body:   append([]byte(nil), writer.body.Bytes()...),
	}
	resp.Header.Del("Content-Length")
	return resp
}

func httpStatusOf(err error) int {
	switch {
	case xerrors.Is(err, ErrAlreadyInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// cachedHTTPResponse 缓存的 HTTP 响应，仅 2xx 视为已持久化
type cachedHTTPResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func (r *cachedHTTPResponse) IsPersisted() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r *cachedHTTPResponse) Serialize() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func replayHTTPResponse(gc *gin.Context, res *Result) error {
	var resp cachedHTTPResponse
	if err := res.Decode(&resp); err != nil {
		return xerrors.Wrap(err, "decode cached HTTP response")
	}
	// 缓存的响应头覆盖上游中间件在本次请求中写入的同名头
	header := gc.Writer.Header()
	for name, values := range resp.Header {
		header.Del(name)
		for _, v := range values {
			header.Add(name, v)
		}
	}
	gc.Writer.Header().Set(HeaderReplayed, "true")
	gc.Status(resp.Status)
	_, err := gc.Writer.Write(resp.Body)
	return err
}

func cloneHeader(header http.Header) http.Header {
	dup := make(http.Header, len(header))
	for k, v := range header {
		dup[k] = append([]string(nil), v...)
	}
	return dup
}

// responseWriter 响应写入器包装器，用于捕获响应体
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
