package utils

import "github.com/gin-gonic/gin"

// H is a flat response object. Every response carries errCode and errMsg.
type H map[string]any

const (
	CodeOK          = 0
	CodeNotLoggedIn = -10
	CodeMalformed   = -11
	CodeUnknownOp   = -12
	CodeServerError = -13
)

// Success returns fields marked as a successful response.
func Success(fields H) H {
	out := H{"errCode": CodeOK, "errMsg": "success"}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Error returns an error response with the given code and message.
func Error(code int, message string) H {
	return H{"errCode": code, "errMsg": message}
}

// Respond writes body as JSON with the given HTTP status.
func Respond(ctx *gin.Context, status int, body H) {
	ctx.JSON(status, body)
}
