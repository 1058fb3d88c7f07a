package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmcdole/b4/internal/pipeline"
)

const jsonContentType = "application/json; charset=utf-8"

// errorBody is the shape of every error this service generates itself
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Translate maps an operation result to a status code and JSON body.
// Store answers are relayed byte for byte.
func Translate(res pipeline.Result) (int, []byte) {
	switch res.Kind {
	case pipeline.Success, pipeline.PassThrough:
		return res.Status, res.Body
	case pipeline.Conflict:
		return http.StatusConflict, encodeError("conflict", res.Reason)
	default:
		return http.StatusBadGateway, encodeError("bad_gateway", res.Reason)
	}
}

func encodeError(kind, reason string) []byte {
	data, _ := json.Marshal(errorBody{Error: kind, Reason: reason})
	return data
}

// render writes res to the client
func render(c *gin.Context, res pipeline.Result) {
	status, body := Translate(res)
	c.Data(status, jsonContentType, body)
}

// abortWithError ends the request with an error body of our own
func abortWithError(c *gin.Context, status int, kind, reason string) {
	c.Data(status, jsonContentType, encodeError(kind, reason))
	c.Abort()
}
