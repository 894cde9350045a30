package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// Error taxonomy. Errors are classified with goerr tags so that callers can branch on the
// class without depending on concrete error types.
var (
	ErrTagConfig         = goerr.NewTag("config")
	ErrTagUpstream       = goerr.NewTag("upstream")
	ErrTagFileProcessing = goerr.NewTag("file_processing")
	ErrTagValidation     = goerr.NewTag("validation")
	ErrTagStore          = goerr.NewTag("store")
	ErrTagNotFound       = goerr.NewTag("not_found")
)

var (
	ErrRecordNotFound = goerr.New("record not found", goerr.T(ErrTagNotFound))
	ErrQueryTooShort  = goerr.New("query is too short", goerr.T(ErrTagValidation))
)

// ErrorKind returns the taxonomy name of err, or "internal" when it carries no known tag.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case goerr.HasTag(err, ErrTagValidation):
		return "validation"
	case goerr.HasTag(err, ErrTagNotFound):
		return "not_found"
	case goerr.HasTag(err, ErrTagConfig):
		return "config"
	case goerr.HasTag(err, ErrTagUpstream):
		return "upstream"
	case goerr.HasTag(err, ErrTagFileProcessing):
		return "file_processing"
	case goerr.HasTag(err, ErrTagStore):
		return "store"
	default:
		return "internal"
	}
}
