package httperr

import (
	"github.com/gin-gonic/gin"
)

// Code is the machine-readable error kind clients switch on.
type Code string

const (
	CodeInvalidRequest  Code = "invalid_request"
	CodeUnauthorized    Code = "unauthorized"
	CodeSoldOut         Code = "sold_out"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodePayloadTooLarge Code = "payload_too_large"
	CodeInternal        Code = "internal"
)

// GenericMessage is shown for every failure except sold out. Retrying with
// the same Idempotency-Key never charges twice.
const GenericMessage = "We could not complete your request. Please try again."

const SoldOutMessage = "Sorry, there is no more availability for the selected date."

type Response struct {
	Status int `json:"-"`
	Error  struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Detail any `json:"detail,omitempty"`
}

func New(status int, code Code, detail any) Response {
	resp := Response{Status: status, Detail: detail}
	resp.Error.Code = code
	resp.Error.Message = GenericMessage
	if code == CodeSoldOut {
		resp.Error.Message = SoldOutMessage
	}
	return resp
}

// preserves original error for future monitoring
func AbortWithError(c *gin.Context, status int, err error, code Code, detail any) {
	if err == nil {
		panic("AbortWithError: err cannot be nil")
	}

	resp := New(status, code, detail)

	_ = c.Error(gin.Error{
		Err:  err,
		Type: gin.ErrorTypePublic,
		Meta: resp,
	})
	c.AbortWithStatusJSON(status, resp)
}
